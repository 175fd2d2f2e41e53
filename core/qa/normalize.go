package qa

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Key fallbacks tried in order when resolving a raw plan record. Upstream API
// versions disagree on field naming, hence the spread.
var (
	planIDKeys    = []string{"plan_id", "planId", "id", "sample_plan_id"}
	planLabelKeys = []string{"plan_name", "planName", "sample_plan_name", "title", "name"}
)

// NormalizePlans converts raw plan data of any known upstream shape into a
// canonical, deduplicated plan list. Records without a resolvable id are
// dropped; duplicate ids collapse to the last-seen label. Unknown shapes yield
// an empty list rather than an error: "no plans available" is a valid outcome.
func NormalizePlans(raw interface{}) []Plan {
	records := planRecords(raw)

	plans := make([]Plan, 0, len(records))
	seen := make(map[string]int, len(records)) // id -> index in plans
	for _, rec := range records {
		id := resolveKey(rec, planIDKeys)
		if id == "" {
			continue
		}
		label := resolveKey(rec, planLabelKeys)
		if label == "" {
			label = "Plan " + id
		}
		if at, ok := seen[id]; ok {
			plans[at].Label = label // last occurrence wins
			continue
		}
		seen[id] = len(plans)
		plans = append(plans, Plan{ID: id, Label: label})
	}
	return plans
}

// planRecords tries the known shape hypotheses in order: a bare array of
// records, a nested {data:{data:[...]}} envelope, then a single non-empty
// object wrapped as a one-element list.
func planRecords(raw interface{}) []map[string]interface{} {
	switch v := raw.(type) {
	case []interface{}:
		return collectRecords(v)
	case []map[string]interface{}:
		return v
	case map[string]interface{}:
		if inner, ok := v["data"].(map[string]interface{}); ok {
			if list, ok := inner["data"].([]interface{}); ok {
				return collectRecords(list)
			}
		}
		if len(v) > 0 {
			return []map[string]interface{}{v}
		}
	}
	return nil
}

func collectRecords(list []interface{}) []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]interface{}); ok {
			records = append(records, rec)
		}
	}
	return records
}

func resolveKey(rec map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if s := stringValue(rec[key]); s != "" {
			return s
		}
	}
	return ""
}

// stringValue coerces the scalar types a JSON decode can produce into a
// trimmed string; anything else resolves to "".
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	}
	return ""
}
