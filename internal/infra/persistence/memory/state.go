package memory

import (
	"sort"

	"wastelink/pkg/domain"
)

// SnapshotVersion is written into every exported snapshot.
const SnapshotVersion = 1

type memoryState struct {
	accounts map[string]Account
	requests map[int64]WasteRequest
	items    map[int64]WasteItem

	// indexes rebuilt from the tables above; never serialised
	requestIDs     map[string]int64
	itemsByRequest map[int64][]int64

	nextRequestID int64
	nextItemID    int64
}

// Snapshot is the serialisable representation of the in-memory state.
// Requests are stored without their items; items reference their parent.
type Snapshot struct {
	Version       int                    `json:"version"`
	Accounts      map[string]Account     `json:"accounts"`
	Requests      map[int64]WasteRequest `json:"requests"`
	Items         map[int64]WasteItem    `json:"items"`
	NextRequestID int64                  `json:"next_request_id"`
	NextItemID    int64                  `json:"next_item_id"`
}

// Empty reports whether the snapshot carries no records.
func (s Snapshot) Empty() bool {
	return len(s.Accounts) == 0 && len(s.Requests) == 0 && len(s.Items) == 0
}

func newMemoryState() memoryState {
	return memoryState{
		accounts:       map[string]Account{},
		requests:       map[int64]WasteRequest{},
		items:          map[int64]WasteItem{},
		requestIDs:     map[string]int64{},
		itemsByRequest: map[int64][]int64{},
		nextRequestID:  1,
		nextItemID:     1,
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Version:       SnapshotVersion,
		Accounts:      make(map[string]Account, len(state.accounts)),
		Requests:      make(map[int64]WasteRequest, len(state.requests)),
		Items:         make(map[int64]WasteItem, len(state.items)),
		NextRequestID: state.nextRequestID,
		NextItemID:    state.nextItemID,
	}
	for k, v := range state.accounts {
		s.Accounts[k] = cloneAccount(v)
	}
	for k, v := range state.requests {
		r := cloneRequest(v)
		r.Items = nil
		s.Requests[k] = r
	}
	for k, v := range state.items {
		s.Items[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	st := newMemoryState()
	for k, v := range s.Accounts {
		st.accounts[k] = cloneAccount(v)
	}
	for k, v := range s.Requests {
		r := cloneRequest(v)
		r.ID = k
		r.Items = nil
		st.requests[k] = r
		st.requestIDs[r.RequestID] = k
		if k >= st.nextRequestID {
			st.nextRequestID = k + 1
		}
	}
	for k, v := range s.Items {
		v.ID = k
		st.items[k] = v
		st.itemsByRequest[v.RequestID] = append(st.itemsByRequest[v.RequestID], k)
		if k >= st.nextItemID {
			st.nextItemID = k + 1
		}
	}
	for _, ids := range st.itemsByRequest {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	if s.NextRequestID > st.nextRequestID {
		st.nextRequestID = s.NextRequestID
	}
	if s.NextItemID > st.nextItemID {
		st.nextItemID = s.NextItemID
	}
	return st
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		accounts:       make(map[string]Account, len(s.accounts)),
		requests:       make(map[int64]WasteRequest, len(s.requests)),
		items:          make(map[int64]WasteItem, len(s.items)),
		requestIDs:     make(map[string]int64, len(s.requestIDs)),
		itemsByRequest: make(map[int64][]int64, len(s.itemsByRequest)),
		nextRequestID:  s.nextRequestID,
		nextItemID:     s.nextItemID,
	}
	for k, v := range s.accounts {
		cloned.accounts[k] = cloneAccount(v)
	}
	for k, v := range s.requests {
		cloned.requests[k] = cloneRequest(v)
	}
	for k, v := range s.items {
		cloned.items[k] = v
	}
	for k, v := range s.requestIDs {
		cloned.requestIDs[k] = v
	}
	for k, v := range s.itemsByRequest {
		cloned.itemsByRequest[k] = append([]int64(nil), v...)
	}
	return cloned
}

// decorateRequest attaches the request's items in insertion order.
func (s *memoryState) decorateRequest(r WasteRequest) WasteRequest {
	cp := cloneRequest(r)
	ids := s.itemsByRequest[r.ID]
	cp.Items = make([]WasteItem, 0, len(ids))
	for _, id := range ids {
		cp.Items = append(cp.Items, s.items[id])
	}
	return cp
}

func cloneAccount(a Account) Account {
	cp := a
	if a.Prices != nil {
		cp.Prices = make(map[domain.Material]float64, len(a.Prices))
		for k, v := range a.Prices {
			cp.Prices[k] = v
		}
	}
	if a.Latitude != nil {
		lat := *a.Latitude
		cp.Latitude = &lat
	}
	if a.Longitude != nil {
		lon := *a.Longitude
		cp.Longitude = &lon
	}
	return cp
}

func cloneRequest(r WasteRequest) WasteRequest {
	cp := r
	if r.CollectorID != nil {
		id := *r.CollectorID
		cp.CollectorID = &id
	}
	cp.Items = append([]WasteItem(nil), r.Items...)
	return cp
}
