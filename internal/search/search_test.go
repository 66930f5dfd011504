package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operator-framework/amb/pkg/amb"
)

func collect(t *testing.T, fn Func, options ...Option) ([]interface{}, error) {
	t.Helper()
	s, err := New(fn, options...)
	require.NoError(t, err)
	var out []interface{}
	err = s.Run(context.Background(), func(v interface{}) bool {
		out = append(out, v)
		return true
	})
	return out, err
}

type triple struct{ i, j, k int }

func distinctTriples(u *Universe) (interface{}, error) {
	values := []int{1, 2, 3}
	i := values[u.Choose(len(values))]
	j := values[u.Choose(len(values))]
	k := 0
	if j == 2 {
		k = values[u.Choose(len(values))]
	}
	if i == j || j == k || i == k {
		u.Prune()
	}
	return triple{i, j, k}, nil
}

func ifAnyIf(u *Universe) (interface{}, error) {
	if u.IfAny() {
		c := u.Choose(5)
		if c == 3 {
			u.Prune()
		}
		return c, nil
	}
	if u.ElseNone() {
		return "else", nil
	}
	return nil, nil
}

func ifAnyElse(u *Universe) (interface{}, error) {
	if u.IfAny() {
		u.Prune()
	}
	if u.ElseNone() {
		return "else", nil
	}
	return nil, nil
}

func ifAnyNested(u *Universe) (interface{}, error) {
	if u.IfAny() {
		if u.IfAny() {
			u.Choose(5)
			if u.IfAny() {
				u.Choose(5)
				u.Prune()
			}
			if u.ElseNone() {
				u.Prune()
			}
		}
		if u.ElseNone() {
			return ifAnyIf(u)
		}
	}
	if u.ElseNone() {
		return "else", nil
	}
	return nil, nil
}

func ifAnyNone(u *Universe) (interface{}, error) {
	if u.IfAny() {
		u.Prune()
	}
	if u.ElseNone() {
		u.Prune()
	}
	return nil, nil
}

func TestDistinctTriples(t *testing.T) {
	out, err := collect(t, distinctTriples)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{
		triple{2, 1, 0},
		triple{3, 1, 0},
		triple{1, 3, 0},
		triple{2, 3, 0},
		triple{3, 2, 1},
		triple{1, 2, 3},
	}, out)
}

func TestIfAnyElseNone(t *testing.T) {
	for _, tt := range []struct {
		Name     string
		Fn       Func
		Expected []interface{}
	}{
		{
			Name:     "surviving branches stand",
			Fn:       ifAnyIf,
			Expected: []interface{}{0, 1, 2, 4},
		},
		{
			Name:     "else runs once when every branch prunes",
			Fn:       ifAnyElse,
			Expected: []interface{}{"else"},
		},
		{
			Name:     "nested scopes compose",
			Fn:       ifAnyNested,
			Expected: []interface{}{0, 1, 2, 4},
		},
		{
			Name: "else may prune too",
			Fn:   ifAnyNone,
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			out, err := collect(t, tt.Fn, WithLogger(testr.New(t)))
			require.NoError(t, err)
			assert.Equal(t, tt.Expected, out)
		})
	}
}

func TestWorkersPreserveOrder(t *testing.T) {
	for _, fn := range []Func{distinctTriples, ifAnyIf, ifAnyElse, ifAnyNested, ifAnyNone} {
		serial, err := collect(t, fn)
		require.NoError(t, err)
		for _, workers := range []int{2, 3, 8} {
			parallel, err := collect(t, fn, WithWorkers(workers))
			require.NoError(t, err)
			assert.Equal(t, serial, parallel, "workers=%d", workers)
		}
	}
}

type recordingTracer struct {
	solved [][]int
	all    []amb.Outcome
}

func (r *recordingTracer) Trace(p amb.SearchPosition) {
	r.all = append(r.all, p.Outcome())
	if p.Outcome() == amb.Solved {
		r.solved = append(r.solved, p.Path())
	}
}

func TestReplayReproducesChoices(t *testing.T) {
	fn := func(u *Universe) (interface{}, error) {
		var taken []int
		for i := 0; i < 3; i++ {
			taken = append(taken, u.Choose(i+2))
		}
		return taken, nil
	}

	var first, second recordingTracer
	out, err := collect(t, fn, WithTracer(&first))
	require.NoError(t, err)
	require.Len(t, out, 2*3*4)
	for i, v := range out {
		if diff := cmp.Diff(first.solved[i], v.([]int)); diff != "" {
			t.Errorf("universe %d returned choices that differ from its path (-path +choices):\n%s", i, diff)
		}
	}

	_, err = collect(t, fn, WithTracer(&second), WithWorkers(4))
	require.NoError(t, err)
	if diff := cmp.Diff(first.solved, second.solved); diff != "" {
		t.Errorf("solved paths differ between runs (-first +second):\n%s", diff)
	}
}

func TestBreadthFirstOrder(t *testing.T) {
	fn := func(u *Universe) (interface{}, error) {
		a := u.Choose(2)
		b := u.Choose(2)
		return fmt.Sprintf("%d%d", a, b), nil
	}
	out, err := collect(t, fn)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"00", "10", "01", "11"}, out)
}

func TestChooseWithoutOptionsPrunes(t *testing.T) {
	out, err := collect(t, func(u *Universe) (interface{}, error) {
		if u.Choose(2) == 1 {
			u.Choose(0)
		}
		return "kept", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"kept"}, out)
}

func TestRecoveredPruneStillPrunes(t *testing.T) {
	out, err := collect(t, func(u *Universe) (interface{}, error) {
		func() {
			defer func() { _ = recover() }()
			u.Prune()
		}()
		return "escaped", nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRecoveredPruneStopsBranching(t *testing.T) {
	for name, after := range map[string]func(u *Universe){
		"choose":    func(u *Universe) { u.Choose(3) },
		"if any":    func(u *Universe) { u.IfAny() },
		"else none": func(u *Universe) { u.ElseNone() },
	} {
		t.Run(name, func(t *testing.T) {
			var runs atomic.Int32
			out, err := collect(t, func(u *Universe) (interface{}, error) {
				runs.Add(1)
				func() {
					defer func() { _ = recover() }()
					u.Prune()
				}()
				after(u)
				return "escaped", nil
			})
			require.NoError(t, err)
			assert.Empty(t, out)
			assert.Equal(t, int32(1), runs.Load())
		})
	}
}

func TestFatalErrors(t *testing.T) {
	errBroken := errors.New("broken")

	t.Run("returned error aborts the search", func(t *testing.T) {
		out, err := collect(t, func(u *Universe) (interface{}, error) {
			if u.Choose(3) == 1 {
				return nil, errBroken
			}
			return "ok", nil
		})
		assert.ErrorIs(t, err, errBroken)
		assert.Equal(t, []interface{}{"ok"}, out)
	})

	t.Run("panic is wrapped", func(t *testing.T) {
		_, err := collect(t, func(u *Universe) (interface{}, error) {
			panic("boom")
		})
		var perr *amb.PanicError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "boom", perr.Value)
		assert.NotEmpty(t, perr.StackTrace)
	})

	t.Run("panicked errors unwrap", func(t *testing.T) {
		_, err := collect(t, func(u *Universe) (interface{}, error) {
			panic(errBroken)
		})
		assert.ErrorIs(t, err, errBroken)
	})

	t.Run("branch count diverges on replay", func(t *testing.T) {
		calls := 0
		_, err := collect(t, func(u *Universe) (interface{}, error) {
			calls++
			if calls == 1 {
				u.Choose(2)
			} else {
				u.Choose(1)
			}
			return nil, nil
		})
		assert.ErrorIs(t, err, amb.ErrReplayDivergence)
	})

	t.Run("call kind diverges on replay", func(t *testing.T) {
		calls := 0
		_, err := collect(t, func(u *Universe) (interface{}, error) {
			calls++
			if calls == 1 {
				u.Choose(2)
			} else {
				u.IfAny()
			}
			return nil, nil
		})
		assert.ErrorIs(t, err, amb.ErrReplayDivergence)
	})

	t.Run("else without if", func(t *testing.T) {
		_, err := collect(t, func(u *Universe) (interface{}, error) {
			u.ElseNone()
			return nil, nil
		})
		assert.ErrorIs(t, err, amb.ErrUnbalancedScope)
	})

	t.Run("recovered fatal still aborts", func(t *testing.T) {
		_, err := collect(t, func(u *Universe) (interface{}, error) {
			func() {
				defer func() { _ = recover() }()
				u.ElseNone()
			}()
			return nil, nil
		})
		assert.ErrorIs(t, err, amb.ErrUnbalancedScope)
	})
}

func TestBudgets(t *testing.T) {
	five := func(u *Universe) (interface{}, error) {
		return u.Choose(5), nil
	}

	t.Run("max solutions", func(t *testing.T) {
		out, err := collect(t, five, WithMaxSolutions(2))
		require.NoError(t, err)
		assert.Equal(t, []interface{}{0, 1}, out)
	})

	t.Run("max universes with work left", func(t *testing.T) {
		s, err := New(five, WithMaxUniverses(3))
		require.NoError(t, err)
		var out []interface{}
		err = s.Run(context.Background(), func(v interface{}) bool {
			out = append(out, v)
			return true
		})
		assert.ErrorIs(t, err, amb.ErrUniverseLimit)
		assert.Equal(t, []interface{}{0, 1, 2}, out)
		assert.Equal(t, 3, s.Explored())
	})

	t.Run("max universes not reached", func(t *testing.T) {
		out, err := collect(t, five, WithMaxUniverses(5), WithWorkers(2))
		require.NoError(t, err)
		assert.Len(t, out, 5)
	})

	t.Run("yield stops the search", func(t *testing.T) {
		s, err := New(five)
		require.NoError(t, err)
		var out []interface{}
		err = s.Run(context.Background(), func(v interface{}) bool {
			out = append(out, v)
			return false
		})
		require.NoError(t, err)
		assert.Equal(t, []interface{}{0}, out)
	})

	t.Run("cancelled context", func(t *testing.T) {
		s, err := New(five)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err = s.Run(ctx, func(interface{}) bool { return true })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestInvalidOptions(t *testing.T) {
	fn := func(u *Universe) (interface{}, error) { return nil, nil }
	for _, option := range []Option{WithWorkers(0), WithMaxUniverses(-1), WithMaxSolutions(-1)} {
		_, err := New(fn, option)
		assert.Error(t, err)
	}
	_, err := New(nil)
	assert.Error(t, err)
}

func TestLoggingTracer(t *testing.T) {
	var buf bytes.Buffer
	_, err := collect(t, func(u *Universe) (interface{}, error) {
		if u.Choose(2) == 1 {
			u.Prune()
		}
		return nil, nil
	}, WithTracer(LoggingTracer{Writer: &buf}))
	require.NoError(t, err)
	assert.Equal(t, `---
Universe: 1
Path: [0]
Outcome: continue
Pending: 1
---
Universe: 1
Path: [0]
Outcome: solved
Pending: 1
---
Universe: 2
Path: [1]
Outcome: pruned
Pending: 0
`, buf.String())
}
