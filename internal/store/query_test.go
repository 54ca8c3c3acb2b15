package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/roach88/hysim/internal/trace"
)

func ptr(f float64) *float64 { return &f }

func TestEventQuery_Compile(t *testing.T) {
	tests := []struct {
		name     string
		q        EventQuery
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "run only",
			q:        EventQuery{RunID: "r"},
			wantSQL:  "SELECT seq, time, kind, actor, value FROM events WHERE run_id = ? ORDER BY seq ASC",
			wantArgs: []any{"r"},
		},
		{
			name:     "every filter",
			q:        EventQuery{RunID: "r", Kind: trace.EventEmitted, Actor: "hi", From: ptr(0.5), To: ptr(2), Limit: 3},
			wantSQL:  "SELECT seq, time, kind, actor, value FROM events WHERE run_id = ? AND kind = ? AND actor = ? AND time >= ? AND time <= ? ORDER BY seq ASC LIMIT ?",
			wantArgs: []any{"r", "event", "hi", 0.5, 2.0, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.q.compile()
			if sql != tt.wantSQL {
				t.Errorf("sql =\n  %s\nwant\n  %s", sql, tt.wantSQL)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestQueryEvents_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1")
	beginTestRun(t, s, "run-2")

	rec := s.Recorder(ctx, "run-1")
	events := []trace.EventRecord{
		{Seq: 1, Time: 0.5, Kind: trace.EventEmitted, Actor: "hi", Value: -1},
		{Seq: 2, Time: 0.5, Kind: trace.EventBreakpoint},
		{Seq: 3, Time: 1.5, Kind: trace.EventEmitted, Actor: "lo", Value: 1},
		{Seq: 4, Time: 2.5, Kind: trace.EventEmitted, Actor: "hi", Value: -1},
	}
	for _, e := range events {
		if err := rec.RecordEvent(e); err != nil {
			t.Fatalf("RecordEvent(%d) failed: %v", e.Seq, err)
		}
	}
	if err := s.Recorder(ctx, "run-2").RecordEvent(trace.EventRecord{Seq: 1, Time: 0.5, Kind: trace.EventEmitted, Actor: "hi"}); err != nil {
		t.Fatalf("RecordEvent(run-2) failed: %v", err)
	}

	seqs := func(t *testing.T, q EventQuery) []int64 {
		t.Helper()
		got, err := s.QueryEvents(ctx, q)
		if err != nil {
			t.Fatalf("QueryEvents(%+v) failed: %v", q, err)
		}
		out := []int64{}
		for _, e := range got {
			out = append(out, e.Seq)
		}
		return out
	}

	tests := []struct {
		name string
		q    EventQuery
		want []int64
	}{
		{"whole run", EventQuery{RunID: "run-1"}, []int64{1, 2, 3, 4}},
		{"by kind", EventQuery{RunID: "run-1", Kind: trace.EventEmitted}, []int64{1, 3, 4}},
		{"by actor", EventQuery{RunID: "run-1", Actor: "hi"}, []int64{1, 4}},
		{"time window", EventQuery{RunID: "run-1", From: ptr(0.5), To: ptr(1.5)}, []int64{1, 2, 3}},
		{"limit", EventQuery{RunID: "run-1", Kind: trace.EventEmitted, Limit: 2}, []int64{1, 3}},
		{"nothing", EventQuery{RunID: "run-1", Actor: "nobody"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := seqs(t, tt.q); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("seqs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryEvents_InvertedWindow(t *testing.T) {
	s := createTestStore(t)
	_, err := s.QueryEvents(context.Background(), EventQuery{RunID: "r", From: ptr(2), To: ptr(1)})
	if err == nil {
		t.Fatal("QueryEvents() with from > to succeeded, want error")
	}
}
