package model

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Схема записи в общем хранилище (admin_bookings). Её обязаны соблюдать все,
// кто пишет в неймспейс в обход ядра: ручное восстановление, отладка, импорт.
const bookingRecordSchema = `{
	"type": "object",
	"required": ["bookingReference", "customerId", "status", "paymentStatus", "origin", "totalAmount", "paidAmount"],
	"properties": {
		"id":               {"type": "string"},
		"localId":          {"type": "string"},
		"bookingReference": {"type": "string", "minLength": 1},
		"customerId":       {"type": "string"},
		"travelersCount":   {"type": "integer"},
		"durationDays":     {"type": "integer"},
		"totalAmount":      {"type": "number"},
		"paidAmount":       {"type": "number"},
		"currency":         {"type": "string"},
		"status":           {"enum": ["pending", "confirmed", "cancelled", "completed"]},
		"paymentStatus":    {"enum": ["pending", "partial", "paid", "failed", "refunded"]},
		"origin":           {"enum": ["remote", "local-pending", "local-synced"]},
		"travelDate":       {"type": "string"},
		"returnDate":       {"type": "string"},
		"createdAt":        {"type": "string"},
		"updatedAt":        {"type": "string"},
		"services":         {"type": ["array", "null"], "items": {"type": "string"}}
	}
}`

var recordSchema = gojsonschema.NewStringLoader(bookingRecordSchema)

// ValidateJSON проверяет сырой JSON одной записи по схеме.
func ValidateJSON(raw []byte) error {
	result, err := gojsonschema.Validate(recordSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate booking json: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("booking json does not match schema: %s", strings.Join(msgs, "; "))
}
