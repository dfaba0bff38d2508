package notify

import (
	"reflect"
	"testing"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

func ptr(v int64) *int64 { return &v }

func withAlert(id, alert int64) model.Notification {
	return model.Notification{ID: id, Alert: &model.Alert{ID: alert}}
}

func ids(ns []model.Notification) []int64 {
	out := make([]int64, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func TestDedup(t *testing.T) {
	tests := []struct {
		name string
		in   []model.Notification
		want []int64
	}{
		{
			name: "empty",
			in:   nil,
			want: []int64{},
		},
		{
			name: "first occurrence wins",
			in:   []model.Notification{withAlert(3, 42), withAlert(2, 42), withAlert(1, 7)},
			want: []int64{3, 1},
		},
		{
			name: "alert keyed before id keyed",
			in:   []model.Notification{{ID: 9}, withAlert(8, 42), {ID: 7}},
			want: []int64{8, 9, 7},
		},
		{
			name: "alert id reference without snapshot",
			in:   []model.Notification{{ID: 5, AlertID: ptr(42)}, withAlert(4, 42)},
			want: []int64{5},
		},
		{
			name: "key spaces never collide",
			in:   []model.Notification{{ID: 42}, withAlert(1, 42)},
			want: []int64{1, 42},
		},
		{
			name: "duplicate ids collapse",
			in:   []model.Notification{{ID: 4, Title: "new"}, {ID: 4, Title: "old"}},
			want: []int64{4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedup(tt.in)
			if got == nil {
				t.Fatal("Dedup returned nil")
			}
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("ids = %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestDedupIdempotentAndUnique(t *testing.T) {
	in := []model.Notification{
		{ID: -1002, Alert: &model.Alert{ID: 55}},
		{ID: 700, AlertID: ptr(55)},
		{ID: 12},
		{ID: 12, Read: true},
		withAlert(11, 9),
		{ID: -1001},
		withAlert(10, 9),
		{ID: 3, AlertID: ptr(12)},
	}

	once := Dedup(in)
	twice := Dedup(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Dedup not idempotent:\n once  %v\n twice %v", ids(once), ids(twice))
	}

	seen := make(map[model.BusinessKey]bool)
	for _, n := range once {
		k := n.BusinessKey()
		if seen[k] {
			t.Errorf("duplicate business key %v", k)
		}
		seen[k] = true
	}
}

func TestDedupFirstWinsKeepsFields(t *testing.T) {
	got := Dedup([]model.Notification{
		{ID: 1, Alert: &model.Alert{ID: 5}, Read: true},
		{ID: 2, Alert: &model.Alert{ID: 5}},
	})
	if len(got) != 1 || got[0].ID != 1 || !got[0].Read {
		t.Errorf("got %+v, want the first record untouched", got)
	}
}
