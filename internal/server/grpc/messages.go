package grpc

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"google.golang.org/protobuf/types/known/structpb"
)

const dateLayout = "2006-01-02"

var timeNow = time.Now

// fields reads typed values out of a request Struct. Missing keys read as
// zero values.
type fields struct {
	m map[string]*structpb.Value
}

func fieldsOf(in *structpb.Struct) fields {
	return fields{m: in.GetFields()}
}

func (f fields) str(key string) string {
	return f.m[key].GetStringValue()
}

func (f fields) boolean(key string) bool {
	return f.m[key].GetBoolValue()
}

func (f fields) integer(key string) (int, error) {
	v, ok := f.m[key]
	if !ok {
		return 0, common.Validationf("%s is required", key)
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != float64(int(n.NumberValue)) {
		return 0, common.Validationf("%s must be an integer", key)
	}
	return int(n.NumberValue), nil
}

// audio decodes a base64 audio field.
func (f fields) audio(key string) ([]byte, error) {
	return decodeAudio(key, f.m[key].GetStringValue())
}

func (f fields) audioList(key string) ([][]byte, error) {
	list := f.m[key].GetListValue().GetValues()
	out := make([][]byte, 0, len(list))
	for i, v := range list {
		b, err := decodeAudio(fmt.Sprintf("%s[%d]", key, i), v.GetStringValue())
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// date parses an RFC 3339 timestamp or a plain date. An absent key yields
// fallback.
func (f fields) date(key string, fallback time.Time) (time.Time, error) {
	s := f.str(key)
	if s == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, common.Validationf("%s must be a date or RFC 3339 timestamp", key)
}

func (f fields) role(key string) (models.Role, error) {
	return models.ParseRole(f.str(key))
}

func decodeAudio(key, s string) ([]byte, error) {
	if s == "" {
		return nil, common.Validationf("%s is required", key)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, common.Validationf("%s is not valid base64", key)
	}
	return b, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// recordValue encodes a record; nil becomes a JSON null.
func recordValue(r *models.AttendanceRecord) any {
	if r == nil {
		return nil
	}
	out := map[string]any{
		"id":          r.ID,
		"date":        r.Date.Format(dateLayout),
		"clock_in":    timestamp(r.ClockIn),
		"status":      string(r.Status),
		"fine_amount": r.FineAmount,
	}
	if r.ClockOut != nil {
		out["clock_out"] = timestamp(*r.ClockOut)
	}
	return out
}

func recordList(recs []*models.AttendanceRecord) []any {
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordValue(r))
	}
	return out
}

func taskValue(t *models.Task) map[string]any {
	out := map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"assigned_at": timestamp(t.AssignedAt),
		"completed":   t.Completed,
	}
	if t.CompletedAt != nil {
		out["completed_at"] = timestamp(*t.CompletedAt)
	}
	return out
}

// identityValue never carries the PIN hash or the voiceprint.
func identityValue(id *models.Identity) map[string]any {
	return map[string]any{
		"id":         id.ID,
		"username":   id.Username,
		"role":       id.Role.String(),
		"created_at": timestamp(id.CreatedAt),
	}
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}
