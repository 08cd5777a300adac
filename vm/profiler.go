package vm

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// FunctionProfile holds call counts for a single function.
type FunctionProfile struct {
	Name    string
	Builtin bool
	Calls   uint64 // atomic
	IsHot   bool
}

// Profiler counts calls per function so hot code can be reported.
// A Profiler may be shared between interpreters.
type Profiler struct {
	profiles sync.Map // lower-cased name -> *FunctionProfile

	// HotThreshold is the call count at which a function becomes hot.
	HotThreshold uint64

	// OnHot is called once per function when it becomes hot.
	OnHot func(p *FunctionProfile)

	hotCount uint64
}

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 1000}
}

// Record counts one call of name. Returns true if this call made the
// function hot.
func (p *Profiler) Record(name string, builtin bool) bool {
	key := strings.ToLower(name)
	val, _ := p.profiles.LoadOrStore(key, &FunctionProfile{Name: name, Builtin: builtin})
	profile := val.(*FunctionProfile)

	count := atomic.AddUint64(&profile.Calls, 1)
	if profile.IsHot || count < p.HotThreshold {
		return false
	}
	profile.IsHot = true
	atomic.AddUint64(&p.hotCount, 1)
	if p.OnHot != nil {
		p.OnHot(profile)
	}
	return true
}

// Profile returns the profile for name, or nil if it was never called.
func (p *Profiler) Profile(name string) *FunctionProfile {
	if val, ok := p.profiles.Load(strings.ToLower(name)); ok {
		return val.(*FunctionProfile)
	}
	return nil
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Functions    int    // distinct functions called
	HotFunctions int    // functions past the threshold
	UserCalls    uint64 // calls of user functions
	BuiltinCalls uint64 // calls of builtins
	TotalCalls   uint64
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.profiles.Range(func(_, value any) bool {
		profile := value.(*FunctionProfile)
		stats.Functions++
		calls := atomic.LoadUint64(&profile.Calls)
		if profile.Builtin {
			stats.BuiltinCalls += calls
		} else {
			stats.UserCalls += calls
		}
		if profile.IsHot {
			stats.HotFunctions++
		}
		return true
	})
	stats.TotalCalls = stats.UserCalls + stats.BuiltinCalls
	return stats
}

// Top returns the n most frequently called functions, busiest first.
// Ties are broken by name.
func (p *Profiler) Top(n int) []*FunctionProfile {
	var all []*FunctionProfile
	p.profiles.Range(func(_, value any) bool {
		all = append(all, value.(*FunctionProfile))
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		ci, cj := atomic.LoadUint64(&all[i].Calls), atomic.LoadUint64(&all[j].Calls)
		if ci != cj {
			return ci > cj
		}
		return all[i].Name < all[j].Name
	})
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.profiles = sync.Map{}
	atomic.StoreUint64(&p.hotCount, 0)
}
