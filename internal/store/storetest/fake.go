// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"strings"
	"sync"

	"github.com/abmgate/abmgate/internal/record"
)

// Call is one statement received by the fake.
type Call struct {
	SQL  string
	Args []any
	Exec bool
}

type response struct {
	match    string
	rows     []record.Fields
	affected int64
	err      error
}

// Fake answers statements by substring match on the SQL text and records
// every call. Unmatched queries return no rows; unmatched execs report one
// affected row.
type Fake struct {
	mu        sync.Mutex
	responses []response
	calls     []Call
}

func New() *Fake {
	return &Fake{}
}

// OnQuery registers rows for statements containing match.
func (f *Fake) OnQuery(match string, rows ...record.Fields) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{match: match, rows: rows})
	return f
}

// OnExec registers an affected count for statements containing match.
func (f *Fake) OnExec(match string, affected int64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{match: match, affected: affected})
	return f
}

// OnError fails statements containing match.
func (f *Fake) OnError(match string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{match: match, err: err})
	return f
}

func (f *Fake) Query(_ context.Context, sql string, args ...any) ([]record.Fields, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{SQL: sql, Args: args})
	if r, ok := f.lookup(sql); ok {
		return r.rows, r.err
	}
	return nil, nil
}

func (f *Fake) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{SQL: sql, Args: args, Exec: true})
	if r, ok := f.lookup(sql); ok {
		return r.affected, r.err
	}
	return 1, nil
}

func (f *Fake) lookup(sql string) (response, bool) {
	for _, r := range f.responses {
		if strings.Contains(sql, r.match) {
			return r, true
		}
	}
	return response{}, false
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Last returns the most recent call.
func (f *Fake) Last() (Call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return Call{}, false
	}
	return f.calls[len(f.calls)-1], true
}

// Row builds a result row from alternating name/value pairs. Values are
// converted with record.FromGo and panic on failure.
func Row(pairs ...any) record.Fields {
	row := make(record.Fields, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		v, err := record.FromGo(pairs[i+1])
		if err != nil {
			panic(err)
		}
		row = append(row, record.Field{Name: pairs[i].(string), Value: v})
	}
	return row
}
