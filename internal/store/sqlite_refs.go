package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

func (s *SQLiteStore) AddReference(name string, vector []float32, meta map[string]string) error {
	vecBuf := new(bytes.Buffer)
	if err := binary.Write(vecBuf, binary.LittleEndian, vector); err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `INSERT INTO entity_refs (name, vector, metadata) VALUES (?, ?, ?)`
	_, err = s.db.Exec(query, name, vecBuf.Bytes(), string(metaJSON))
	return err
}

func (s *SQLiteStore) SearchReferences(queryVector []float32, limit int) ([]Reference, error) {
	// Naive scan: load all, compute cosine, sort. Catalogs are small enough
	// that this wins over carrying a vector extension.
	rows, err := s.db.Query(`SELECT name, vector, metadata FROM entity_refs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []Reference
	for rows.Next() {
		var name string
		var vecBlob []byte
		var metaJSON string
		if err := rows.Scan(&name, &vecBlob, &metaJSON); err != nil {
			return nil, err
		}

		vec := make([]float32, len(vecBlob)/4)
		if err := binary.Read(bytes.NewReader(vecBlob), binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("failed to decode vector: %w", err)
		}

		var meta map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}

		refs = append(refs, Reference{
			Name:       name,
			Metadata:   meta,
			Similarity: cosine(queryVector, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Similarity > refs[j].Similarity })
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
