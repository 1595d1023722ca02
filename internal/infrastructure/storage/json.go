package storage

import (
	"encoding/json"

	"ContentDigest/internal/domain"
)

// JSONB helpers for the columns that hold structured values.

func encodeEntities(entities []domain.Entity) ([]byte, error) {
	if len(entities) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(entities)
}

func decodeEntities(raw []byte) ([]domain.Entity, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var entities []domain.Entity
	if err := json.Unmarshal(raw, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func encodeThemes(themes []domain.Theme) ([]byte, error) {
	if len(themes) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(themes)
}

func decodeThemes(raw []byte) ([]domain.Theme, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var themes []domain.Theme
	if err := json.Unmarshal(raw, &themes); err != nil {
		return nil, err
	}
	return themes, nil
}

func encodeConnections(connections []domain.Connection) ([]byte, error) {
	if len(connections) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(connections)
}

func decodeConnections(raw []byte) ([]domain.Connection, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var connections []domain.Connection
	if err := json.Unmarshal(raw, &connections); err != nil {
		return nil, err
	}
	return connections, nil
}
