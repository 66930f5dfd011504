package predicate_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/operator-framework/amb/pkg/amb"
	"github.com/operator-framework/amb/pkg/amb/predicate"
	"github.com/operator-framework/amb/pkg/amb/universeid"
	"github.com/operator-framework/amb/pkg/amb/varstore"
)

func TestPredicate(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Predicate Suite")
}

func key(name string, args ...interface{}) predicate.Key {
	k, err := predicate.NewKey(name, predicate.Args{Positional: args})
	Expect(err).NotTo(HaveOccurred())
	return k
}

// count records a call of name in the environment's own variables, so
// every solving pass counts separately.
func count(env *predicate.Env, name string) {
	p := varstore.Path{"calls", name}
	v, err := env.Vars().GetDefault(p, 0)
	Expect(err).NotTo(HaveOccurred())
	Expect(env.Vars().Put(p, v.(int)+1)).To(Succeed())
}

func calls(env *predicate.Env, name string) int {
	v, err := env.Vars().GetDefault(varstore.Path{"calls", name}, 0)
	Expect(err).NotTo(HaveOccurred())
	return v.(int)
}

func value(env *predicate.Env, name string, args ...interface{}) interface{} {
	v, ok := env.Value(name, args...)
	Expect(ok).To(BeTrue(), "%s is not solved", name)
	return v
}

func newGraph(funcs map[string]predicate.Func, options ...predicate.Option) *predicate.Graph {
	r := predicate.NewRegistry()
	for name, fn := range funcs {
		Expect(r.Register(name, fn)).To(Succeed())
	}
	options = append([]predicate.Option{
		predicate.WithLogger(GinkgoLogr),
		predicate.WithIDProvider(universeid.NewCounter()),
	}, options...)
	g, err := predicate.New(r, options...)
	Expect(err).NotTo(HaveOccurred())
	return g
}

var _ = Describe("Key", func() {
	It("should not depend on keyword order", func() {
		a, err := predicate.NewKey("vm", predicate.Args{
			Positional: []interface{}{"web", 2},
			Keyword:    map[string]interface{}{"zone": "a", "disk": 10},
		})
		Expect(err).NotTo(HaveOccurred())
		b, err := predicate.NewKey("vm", predicate.Args{
			Positional: []interface{}{"web", 2},
			Keyword:    map[string]interface{}{"disk": 10, "zone": "a"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(b))
		Expect(a.String()).To(Equal(`vm("web",2, {"disk":10,"zone":"a"})`))
	})

	It("should reject arguments that cannot be encoded", func() {
		_, err := predicate.NewKey("bad", predicate.Args{Positional: []interface{}{func() {}}})
		Expect(err).To(HaveOccurred())
	})

	It("should reject fractional integer arguments", func() {
		args := predicate.Args{Positional: []interface{}{1.5, 2.0, int64(3)}}
		_, err := args.Int(0)
		Expect(err).To(MatchError(ContainSubstring("1.5, not an integer")))
		Expect(args.Int(1)).To(Equal(2))
		Expect(args.Int(2)).To(Equal(3))
	})

	It("should render the root", func() {
		Expect(predicate.Key{}.IsRoot()).To(BeTrue())
		Expect(predicate.Key{}.String()).To(Equal("<root>"))
		Expect(key("a").String()).To(Equal("a()"))
	})
})

var _ = Describe("Graph", func() {
	ctx := context.Background()

	Describe("memoization", func() {
		var g *predicate.Graph

		BeforeEach(func() {
			g = newGraph(map[string]predicate.Func{
				"leaf": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					count(env, "leaf")
					return "leaf", nil
				},
				"a": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					return env.Require("leaf")
				},
				"b": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					return env.Require("leaf")
				},
			})
			Expect(g.Require("a")).To(Succeed())
			Expect(g.Require("b")).To(Succeed())
		})

		It("should solve a shared instance once per pass", func() {
			var envs []*predicate.Env
			for env, err := range g.Solve(ctx) {
				Expect(err).NotTo(HaveOccurred())
				envs = append(envs, env)
			}
			// one pass per evaluation order of a and b
			Expect(envs).To(HaveLen(2))
			for _, env := range envs {
				Expect(calls(env, "leaf")).To(Equal(1))
				Expect(env.Converged()).To(BeTrue())
				Expect(value(env, "a")).To(Equal("leaf"))
				Expect(env.Parents(key("leaf"))).To(Equal([]predicate.Key{key("a"), key("b")}))
			}
		})

		It("should leave the baseline untouched until applied", func() {
			var envs []*predicate.Env
			for env, err := range g.Solve(ctx) {
				Expect(err).NotTo(HaveOccurred())
				envs = append(envs, env)
			}
			Expect(g.Env().Unsolved()).To(Equal([]predicate.Key{key("a"), key("b")}))
			Expect(g.Env().State("leaf")).To(Equal(predicate.Absent))

			Expect(g.Apply(ctx, envs[0])).To(Succeed())
			Expect(g.Env()).To(BeIdenticalTo(envs[0]))
			Expect(g.Env().State("leaf")).To(Equal(predicate.Solved))
			Expect(g.Apply(ctx, envs[1])).To(MatchError(amb.ErrStaleCandidate))
			Expect(g.Apply(ctx, nil)).To(MatchError(amb.ErrStaleCandidate))
		})

		It("should explore a single order with WithFixedOrder", func() {
			fixed := newGraph(map[string]predicate.Func{
				"a": func(*predicate.Env, predicate.Args) (interface{}, error) { return 1, nil },
				"b": func(*predicate.Env, predicate.Args) (interface{}, error) { return 2, nil },
			}, predicate.WithFixedOrder())
			Expect(fixed.Require("a")).To(Succeed())
			Expect(fixed.Require("b")).To(Succeed())
			n := 0
			for _, err := range fixed.Solve(ctx) {
				Expect(err).NotTo(HaveOccurred())
				n++
			}
			Expect(n).To(Equal(1))
		})
	})

	Describe("invalidation", func() {
		var g *predicate.Graph
		x := varstore.Path{"x"}

		BeforeEach(func() {
			vars := varstore.New()
			Expect(vars.Put(x, 1)).To(Succeed())
			g = newGraph(map[string]predicate.Func{
				"watcher": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					count(env, "watcher")
					if err := env.Watch(x); err != nil {
						return nil, err
					}
					return env.Vars().Get(x)
				},
				"mid": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					return env.Require("watcher")
				},
				"other": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					count(env, "other")
					return nil, nil
				},
				"top": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					v, err := env.Require("mid")
					if err != nil {
						return nil, err
					}
					if _, err := env.Require("other"); err != nil {
						return nil, err
					}
					return fmt.Sprint(v), nil
				},
			}, predicate.WithVars(vars), predicate.WithFixedOrder())
			Expect(g.Require("top")).To(Succeed())
			_, err := g.Resolve(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should order instances by depth", func() {
			env := g.Env()
			Expect(env.Goals()).To(Equal([]predicate.Key{key("top")}))
			Expect(env.Depth(key("top"))).To(Equal(1))
			Expect(env.Depth(key("mid"))).To(Equal(2))
			Expect(env.Depth(key("watcher"))).To(Equal(3))
			Expect(env.Children(key("top"))).To(Equal([]predicate.Key{key("mid"), key("other")}))
			Expect(env.Parents(key("top"))).To(BeEmpty())
			Expect(env.Keys()).To(HaveLen(4))
		})

		It("should mark the watcher and its transitive parents unsolved", func() {
			Expect(g.Vars().Put(x, 2)).To(Succeed())
			env := g.Env()
			Expect(env.Unsolved()).To(Equal([]predicate.Key{key("mid"), key("top"), key("watcher")}))
			Expect(env.State("other")).To(Equal(predicate.Solved))
			Expect(env.Converged()).To(BeFalse())
		})

		It("should re-solve only the invalidated instances", func() {
			Expect(g.Vars().Put(x, 2)).To(Succeed())
			env, err := g.Resolve(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(value(env, "top")).To(Equal("2"))
			Expect(calls(env, "watcher")).To(Equal(2))
			Expect(calls(env, "other")).To(Equal(1))
			Expect(env.Converged()).To(BeTrue())
		})

		It("should ignore unrelated variables", func() {
			Expect(g.Vars().Put(varstore.Path{"y"}, 2)).To(Succeed())
			Expect(g.Env().Unsolved()).To(BeEmpty())
		})

		It("should re-solve redefined predicates", func() {
			Expect(g.Define("other", func(*predicate.Env, predicate.Args) (interface{}, error) {
				return "new", nil
			})).To(Succeed())
			Expect(g.Env().Unsolved()).To(Equal([]predicate.Key{key("other"), key("top")}))
			env, err := g.Resolve(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(value(env, "other")).To(Equal("new"))
		})
	})

	Describe("deferred invalidation", func() {
		It("should leave changes made during a pass to the next one", func() {
			x := varstore.Path{"x"}
			g := newGraph(map[string]predicate.Func{
				"reader": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					if err := env.Watch(x); err != nil {
						return nil, err
					}
					return env.Vars().GetDefault(x, 0)
				},
				"writer": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					return nil, env.Vars().Put(x, 1)
				},
			}, predicate.WithFixedOrder())
			Expect(g.Require("reader")).To(Succeed())
			Expect(g.Require("writer")).To(Succeed())

			env, err := g.Resolve(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Converged()).To(BeFalse())
			Expect(env.Unsolved()).To(Equal([]predicate.Key{key("reader")}))

			env, err = g.Resolve(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Converged()).To(BeTrue())
			Expect(value(env, "reader")).To(Equal(1))
		})
	})

	Describe("cleanups", func() {
		var (
			g   *predicate.Graph
			log []string
			x   = varstore.Path{"x"}
		)

		record := func(entry string) predicate.CleanupFunc {
			return func(*predicate.Env) error {
				log = append(log, entry)
				return nil
			}
		}

		BeforeEach(func() {
			log = nil
			g = newGraph(map[string]predicate.Func{
				"svc": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					if err := env.Watch(x); err != nil {
						return nil, err
					}
					Expect(env.Cleanup(record("first"))).To(Succeed())
					Expect(env.Cleanup(record("second"))).To(Succeed())
					return env.Require("dep")
				},
				"dep": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					Expect(env.Cleanup(record("dep"))).To(Succeed())
					return nil, nil
				},
			}, predicate.WithFixedOrder())
			Expect(g.Require("svc")).To(Succeed())
			_, err := g.Resolve(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(log).To(BeEmpty())
		})

		It("should run once in reverse order on release", func() {
			Expect(g.Release("svc")).To(Succeed())
			Expect(log).To(Equal([]string{"second", "first", "dep"}))
			Expect(g.Env().State("svc")).To(Equal(predicate.Absent))
			Expect(g.Env().State("dep")).To(Equal(predicate.Absent))
			Expect(g.Release("svc")).To(HaveOccurred())
			Expect(log).To(HaveLen(3))
		})

		It("should run before re-solving", func() {
			Expect(g.Vars().Put(x, 1)).To(Succeed())
			_, err := g.Resolve(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(log).To(Equal([]string{"second", "first"}))

			Expect(g.Release("svc")).To(Succeed())
			Expect(log).To(Equal([]string{"second", "first", "second", "first", "dep"}))
		})

		It("should need an instance being solved", func() {
			Expect(g.Env().Cleanup(record("nope"))).To(MatchError(amb.ErrNoCurrentInstance))
			Expect(g.Env().Watch(x)).To(MatchError(amb.ErrNoCurrentInstance))
		})
	})

	Describe("failure", func() {
		hosts := func(up ...string) *varstore.Store {
			vars := varstore.New()
			for _, h := range []string{"h1", "h2"} {
				Expect(vars.Put(varstore.Path{"hosts", h, "up"}, false)).To(Succeed())
			}
			for _, h := range up {
				Expect(vars.Put(varstore.Path{"hosts", h, "up"}, true)).To(Succeed())
			}
			return vars
		}

		funcs := map[string]predicate.Func{
			"host": func(env *predicate.Env, args predicate.Args) (interface{}, error) {
				name, err := args.String(0)
				if err != nil {
					return nil, err
				}
				p := varstore.Path{"hosts", name, "up"}
				if err := env.Watch(p); err != nil {
					return nil, err
				}
				up, err := env.Vars().Get(p)
				if err != nil {
					return nil, err
				}
				if up != true {
					env.Prune()
				}
				return name, nil
			},
			"app": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
				return env.Require("host", predicate.Choose(env, "h1", "h2"))
			},
		}

		It("should choose around a failing child", func() {
			g := newGraph(funcs, predicate.WithVars(hosts("h2")))
			Expect(g.Require("app")).To(Succeed())
			env, err := g.Resolve(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(value(env, "app")).To(Equal("h2"))
			Expect(env.State("host", "h1")).To(Equal(predicate.Absent))
		})

		It("should re-solve parents of an instance that fails", func() {
			g := newGraph(funcs, predicate.WithVars(hosts("h1", "h2")))
			Expect(g.Require("app")).To(Succeed())
			env, err := g.Resolve(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(value(env, "app")).To(Equal("h1"))

			Expect(g.Vars().Put(varstore.Path{"hosts", "h1", "up"}, false)).To(Succeed())
			Expect(g.Env().Unsolved()).To(Equal([]predicate.Key{key("app"), key("host", "h1")}))

			env, err = g.Resolve(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(value(env, "app")).To(Equal("h2"))
			Expect(env.State("host", "h1")).To(Equal(predicate.Absent))
			Expect(env.State("host", "h2")).To(Equal(predicate.Solved))
			Expect(env.Children(key("app"))).To(Equal([]predicate.Key{key("host", "h2")}))
			Expect(env.Depth(key("host", "h2"))).To(Equal(2))
		})

		It("should report unsatisfiable goals", func() {
			g := newGraph(funcs, predicate.WithVars(hosts()))
			Expect(g.Require("app")).To(Succeed())
			_, err := g.Resolve(ctx)
			Expect(err).To(MatchError(amb.ErrUnsatisfiable))
			Expect(g.Env().Unsolved()).To(Equal([]predicate.Key{key("app")}))
		})
	})

	Describe("fatal errors", func() {
		It("should report cycles", func() {
			g := newGraph(map[string]predicate.Func{
				"a": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					return env.Require("b")
				},
				"b": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					// dropping the error does not hide the cycle
					_, _ = env.Require("a")
					return nil, nil
				},
			})
			Expect(g.Require("a")).To(Succeed())
			_, err := g.Resolve(ctx)
			var cycle *amb.CycleError
			Expect(errors.As(err, &cycle)).To(BeTrue())
			Expect(cycle.Key).To(Equal("a()"))
			Expect(cycle.Chain).To(Equal([]string{"a()", "b()", "a()"}))
		})

		It("should report self requires", func() {
			g := newGraph(map[string]predicate.Func{
				"self": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					return env.Require("self")
				},
			})
			Expect(g.Require("self")).To(Succeed())
			_, err := g.Resolve(ctx)
			var cycle *amb.CycleError
			Expect(errors.As(err, &cycle)).To(BeTrue())
		})

		It("should report unknown predicates", func() {
			g := newGraph(map[string]predicate.Func{
				"a": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
					return env.Require("missing")
				},
			})
			Expect(g.Require("missing")).To(MatchError(&amb.UnknownPredicateError{Name: "missing"}))
			Expect(g.Require("a")).To(Succeed())
			_, err := g.Resolve(ctx)
			Expect(err).To(MatchError(&amb.UnknownPredicateError{Name: "missing"}))
		})

		It("should pass predicate errors through", func() {
			errBroken := errors.New("broken")
			g := newGraph(map[string]predicate.Func{
				"a": func(*predicate.Env, predicate.Args) (interface{}, error) {
					return nil, errBroken
				},
			})
			Expect(g.Require("a")).To(Succeed())
			_, err := g.Resolve(ctx)
			Expect(err).To(MatchError(errBroken))
		})
	})

	It("should validate construction", func() {
		_, err := predicate.New(nil)
		Expect(err).To(HaveOccurred())
		_, err = predicate.New(predicate.NewRegistry(), predicate.WithVars(nil))
		Expect(err).To(HaveOccurred())
		Expect(predicate.NewRegistry().Register("", nil)).NotTo(Succeed())
	})
})
