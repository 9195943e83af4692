package storage

import (
	"encoding/json"
	"errors"

	"estrainer/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion stamps new records.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.Run) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.Run, error) {
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func EncodeGeneration(g model.GenerationRecord) ([]byte, error) {
	return json.Marshal(g)
}

func DecodeGeneration(data []byte) (model.GenerationRecord, error) {
	var record model.GenerationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.GenerationRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.GenerationRecord{}, err
	}
	return record, nil
}

func EncodeEpisode(e model.EpisodeRecord) ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEpisode(data []byte) (model.EpisodeRecord, error) {
	var record model.EpisodeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.EpisodeRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.EpisodeRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
