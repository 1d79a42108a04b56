// FILE: away/filter.go

package away

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// Filter field names as they appear in request parameters and in storage.
const (
	FieldID          = "id"
	FieldTeamID      = "team_id"
	FieldUserID      = "user_id"
	FieldStatus      = "status"
	FieldEndDatetime = "end_datetime"
)

// Filter is a declarative read predicate. Every populated field narrows the
// result; empty slices and a nil ReadFrom impose no constraint of their own,
// but Resolve injects the defaults for Statuses and ReadFrom.
type Filter struct {
	IDs      []string
	TeamIDs  []string
	UserIDs  []string
	Statuses []Status
	// ReadFrom is an inclusive lower bound on EndDatetime.
	ReadFrom *time.Time
}

// Predicate is a validated Filter with the default policy applied. Backends
// translate a Predicate, never a raw Filter.
type Predicate struct {
	IDs      []string
	TeamIDs  []string
	UserIDs  []string
	Statuses []Status // never empty
	ReadFrom time.Time
}

// Resolve validates the filter and applies the default view: an omitted status
// means active only and an omitted ReadFrom means now.
func (f Filter) Resolve(now time.Time) (Predicate, error) {
	var errs []FieldError
	for _, s := range f.Statuses {
		if !s.Valid() {
			errs = append(errs, FieldError{Field: FieldStatus, Message: fmt.Sprintf("unknown status %q", s)})
		}
	}
	if len(errs) > 0 {
		return Predicate{}, NewValidationErrors(errs)
	}

	p := Predicate{
		IDs:      nonEmpty(f.IDs),
		TeamIDs:  nonEmpty(f.TeamIDs),
		UserIDs:  nonEmpty(f.UserIDs),
		Statuses: slices.Compact(sortedStatuses(f.Statuses)),
	}
	if len(p.Statuses) == 0 {
		p.Statuses = []Status{StatusActive}
	}
	if f.ReadFrom != nil {
		p.ReadFrom = Instant(*f.ReadFrom)
	} else {
		p.ReadFrom = Instant(now)
	}
	return p, nil
}

// Matches evaluates the predicate against a single record.
func (p Predicate) Matches(r Record) bool {
	if len(p.IDs) > 0 && !slices.Contains(p.IDs, r.ID) {
		return false
	}
	if len(p.TeamIDs) > 0 && !slices.Contains(p.TeamIDs, r.TeamID) {
		return false
	}
	if len(p.UserIDs) > 0 && !slices.Contains(p.UserIDs, r.UserID) {
		return false
	}
	if !slices.Contains(p.Statuses, r.Status) {
		return false
	}
	return !r.EndDatetime.Before(p.ReadFrom)
}

// StatusStrings returns the statuses in their persisted form.
func (p Predicate) StatusStrings() []string {
	out := make([]string, len(p.Statuses))
	for i, s := range p.Statuses {
		out[i] = string(s)
	}
	return out
}

// HistoryFilter matches every record ever stored, whatever its status.
func HistoryFilter() Filter {
	from := Epoch
	return Filter{Statuses: AllStatuses(), ReadFrom: &from}
}

// FilterFromValues builds a Filter from request parameters keyed by field name.
// Repeated keys and comma separated values both add to the set. Unknown fields
// are rejected so a typo cannot silently widen a query.
func FilterFromValues(values map[string][]string) (Filter, error) {
	var f Filter
	var errs []FieldError

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := splitValues(values[key])
		switch key {
		case FieldID:
			f.IDs = append(f.IDs, vals...)
		case FieldTeamID:
			f.TeamIDs = append(f.TeamIDs, vals...)
		case FieldUserID:
			f.UserIDs = append(f.UserIDs, vals...)
		case FieldStatus:
			for _, v := range vals {
				s := Status(strings.ToLower(v))
				if !s.Valid() {
					errs = append(errs, FieldError{Field: key, Message: fmt.Sprintf("unknown status %q", v)})
					continue
				}
				f.Statuses = append(f.Statuses, s)
			}
		case FieldEndDatetime:
			if len(vals) == 0 {
				continue
			}
			if len(vals) > 1 {
				errs = append(errs, FieldError{Field: key, Message: "expects a single lower bound"})
				continue
			}
			t, err := time.Parse(time.RFC3339, vals[0])
			if err != nil {
				errs = append(errs, FieldError{Field: key, Message: "must be an RFC 3339 timestamp"})
				continue
			}
			f.ReadFrom = &t
		default:
			errs = append(errs, FieldError{Field: key, Message: "unrecognized filter field"})
		}
	}

	if len(errs) > 0 {
		return Filter{}, NewValidationErrors(errs)
	}
	return f, nil
}

func splitValues(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func nonEmpty(in []string) []string {
	var out []string
	for _, v := range in {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func sortedStatuses(in []Status) []Status {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
