package service

import (
	"context"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/gatekeylabs/gatekey/internal/app/repository"
)

const (
	codeFilterCapacity = 100_000
	codeFilterFPRate   = 0.001
)

// CodeFilter is a bloom filter over issued link codes, sitting in front of
// the grant path so floods of garbage codes never reach the conditional
// update. False positives fall through to the database. A miss only proves
// the code is unknown to this process: codes issued by other instances
// land here when their first attempt confirms against the store.
type CodeFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCodeFilter seeds the filter with every code currently in the store.
func NewCodeFilter(ctx context.Context, links repository.LinkRepository) (*CodeFilter, error) {
	codes, err := links.ListCodes(ctx)
	if err != nil {
		return nil, err
	}

	f := &CodeFilter{
		filter: bloom.NewWithEstimates(codeFilterCapacity, codeFilterFPRate),
	}
	for _, code := range codes {
		f.filter.AddString(strings.ToUpper(code))
	}
	return f, nil
}

// Add registers a freshly issued code.
func (f *CodeFilter) Add(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(strings.ToUpper(strings.TrimSpace(code)))
}

// MayExist reports whether the code could be a real link code.
func (f *CodeFilter) MayExist(code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(strings.ToUpper(strings.TrimSpace(code)))
}
