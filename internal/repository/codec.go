package repository

import (
	"encoding/json"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
)

func encodeBucket(b *models.Bucket) ([]byte, error) {
	if b.Companies == nil {
		b = &models.Bucket{Companies: []models.CompanyEntry{}}
	}
	return json.Marshal(b)
}

func decodeBucket(key models.BucketKey, data []byte) (*models.Bucket, error) {
	var b models.Bucket
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &drepo.CorruptError{Key: key, Kind: "bucket", Err: err}
	}
	return &b, nil
}

func encodeSnapshot(s *models.StatSnapshot) ([]byte, error) {
	if s == nil {
		s = models.NewStatSnapshot()
	}
	return json.Marshal(s)
}

func decodeSnapshot(key models.BucketKey, data []byte) (*models.StatSnapshot, error) {
	s := models.NewStatSnapshot()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, &drepo.CorruptError{Key: key, Kind: "snapshot", Err: err}
	}
	if s.Median == nil {
		s.Median = map[models.Ratio]float64{}
	}
	if s.MAD == nil {
		s.MAD = map[models.Ratio]float64{}
	}
	return s, nil
}
