// Package audit serves the warehouse audit trail written by ledger and
// workflow transactions.
package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Resource types recorded by the warehouse services.
var resourceTypes = map[string]struct{}{
	"warehouse_location": {},
	"product_location":   {},
	"receiving_shipment": {},
	"receiving_item":     {},
	"pick_list":          {},
	"pick_list_item":     {},
}

const (
	defaultLimit = 100
	maxLimit     = 500
)

// Reader loads audit rows of one resource.
type Reader interface {
	History(ctx context.Context, resourceType, resourceID string, limit int) ([]shared.AuditLog, error)
}

// Filter selects one resource's trail.
type Filter struct {
	ResourceType string
	ResourceID   string
	Action       string
	Limit        int
}

// ErrUnknownResource is returned for resource types no service writes.
var ErrUnknownResource = fmt.Errorf("%w: unknown audit resource type", shared.ErrValidation)

// Service reads the audit trail.
type Service struct {
	reader Reader
}

// NewService builds Service.
func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// Trail returns the audit rows of a resource, newest first.
func (s *Service) Trail(ctx context.Context, filter Filter) ([]shared.AuditLog, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("audit: reader not configured")
	}
	filter.ResourceType = strings.TrimSpace(filter.ResourceType)
	filter.ResourceID = strings.TrimSpace(filter.ResourceID)
	if _, ok := resourceTypes[filter.ResourceType]; !ok {
		return nil, ErrUnknownResource
	}
	if filter.ResourceID == "" {
		return nil, fmt.Errorf("%w: resource id required", shared.ErrValidation)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	logs, err := s.reader.History(ctx, filter.ResourceType, filter.ResourceID, limit)
	if err != nil {
		return nil, err
	}
	if filter.Action == "" {
		return logs, nil
	}
	out := make([]shared.AuditLog, 0, len(logs))
	for _, log := range logs {
		if log.Action == filter.Action {
			out = append(out, log)
		}
	}
	return out, nil
}
