package connection

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Registry errors.
var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrSocketInUse       = errors.New("socket already has a connection")
)

// ID identifies a connection for its whole lifetime. IDs are never reused.
type ID string

// Registry maps live sockets to connection IDs and back.
type Registry struct {
	prefix string
	seq    uint64
	byFD   map[int]ID
	byID   map[ID]int
}

// NewRegistry creates an empty registry with a fresh instance prefix.
func NewRegistry() *Registry {
	return &Registry{
		prefix: uuid.New().String()[:8],
		byFD:   make(map[int]ID),
		byID:   make(map[ID]int),
	}
}

// Add issues a new ID for fd.
func (r *Registry) Add(fd int) (ID, error) {
	if id, ok := r.byFD[fd]; ok {
		return "", fmt.Errorf("%w: fd %d is %s", ErrSocketInUse, fd, id)
	}
	r.seq++
	id := ID(r.prefix + "-" + strconv.FormatUint(r.seq, 10))
	r.byFD[fd] = id
	r.byID[id] = fd
	return id, nil
}

// Remove drops the mapping of fd and returns the ID it had.
func (r *Registry) Remove(fd int) (ID, bool) {
	id, ok := r.byFD[fd]
	if !ok {
		return "", false
	}
	delete(r.byFD, fd)
	delete(r.byID, id)
	return id, true
}

// Socket returns the descriptor bound to id.
func (r *Registry) Socket(id ID) (int, error) {
	fd, ok := r.byID[id]
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	return fd, nil
}

// ID returns the connection ID bound to fd.
func (r *Registry) ID(fd int) (ID, error) {
	id, ok := r.byFD[fd]
	if !ok {
		return "", fmt.Errorf("%w: fd %d", ErrUnknownConnection, fd)
	}
	return id, nil
}

// IDs returns the live connection IDs in no particular order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.byFD)
}

// Issued returns the number of IDs handed out so far.
func (r *Registry) Issued() uint64 {
	return r.seq
}
