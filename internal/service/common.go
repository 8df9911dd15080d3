package service

import "github.com/saadjs/carbon-cli/internal/model"

func filterOwner(records []model.EmissionRecord, ownerID string) []model.EmissionRecord {
	out := make([]model.EmissionRecord, 0, len(records))
	if ownerID == "" {
		return out
	}
	for _, rec := range records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out
}

func withoutOwner(records []model.EmissionRecord, ownerID string) []model.EmissionRecord {
	out := make([]model.EmissionRecord, 0, len(records))
	for _, rec := range records {
		if rec.OwnerID != ownerID {
			out = append(out, rec)
		}
	}
	return out
}

func countOwner(records []model.EmissionRecord, ownerID string) int {
	n := 0
	for _, rec := range records {
		if rec.OwnerID == ownerID {
			n++
		}
	}
	return n
}
