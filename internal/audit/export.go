package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// WriteCSV renders audit rows with before/after values as JSON columns.
func WriteCSV(logs []shared.AuditLog) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"at", "actor_id", "action", "resource_type", "resource_id", "before", "after"}); err != nil {
		return nil, err
	}
	for _, log := range logs {
		before, err := jsonColumn(log.Before)
		if err != nil {
			return nil, err
		}
		after, err := jsonColumn(log.After)
		if err != nil {
			return nil, err
		}
		record := []string{
			log.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(log.ActorID, 10),
			log.Action,
			log.ResourceType,
			log.ResourceID,
			before,
			after,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func jsonColumn(v map[string]any) (string, error) {
	if len(v) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
