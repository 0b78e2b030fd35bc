package http

import (
	"net/http"
	"net/url"
	"sort"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/km-arc/go-singleton/framework/registry"
	"github.com/km-arc/go-singleton/framework/routing"
	"github.com/km-arc/go-singleton/framework/singleton"
)

// Inspector serves a read-only JSON view of an arena and its registry.
//
//	GET /singletons             every declared or touched identity
//	GET /singletons/{identity}  one identity, by its qualified type name
//	GET /registry               registry entries and state
//	GET /metrics                Prometheus exposition (when a gatherer is set)
type Inspector struct {
	arena    *singleton.Arena
	registry *registry.Registry
	gatherer prometheus.Gatherer
}

// NewInspector creates an Inspector. reg and g may be nil.
func NewInspector(a *singleton.Arena, reg *registry.Registry, g prometheus.Gatherer) *Inspector {
	if a == nil {
		a = singleton.Default()
	}
	return &Inspector{arena: a, registry: reg, gatherer: g}
}

// Routes mounts the inspector on r. JSON views are served uncached.
func (in *Inspector) Routes(r *routing.Router) {
	r.Group(func(r *routing.Router) {
		r.Middleware(middleware.NoCache)
		r.Prefix("/singletons", func(r *routing.Router) {
			r.Get("/", in.List)
			r.Get("/*", in.Show)
		})
		if in.registry != nil {
			r.Get("/registry", in.Registry)
		}
	})
	if in.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(in.gatherer, promhttp.HandlerOpts{}))
	}
}

type policyView struct {
	Disposable      bool `json:"disposable"`
	CreateInternal  bool `json:"create_internal"`
	InitByAttribute bool `json:"init_by_attribute"`
	Declared        bool `json:"declared"`
}

type slotView struct {
	Identity      string     `json:"identity"`
	Root          string     `json:"root"`
	Concrete      string     `json:"concrete,omitempty"`
	Initialized   bool       `json:"initialized"`
	Disposed      bool       `json:"disposed"`
	Blocked       bool       `json:"blocked"`
	LazilyCreated bool       `json:"lazily_created"`
	Subscribers   int        `json:"subscribers"`
	Managed       bool       `json:"managed"`
	Policy        policyView `json:"policy"`
}

type entryView struct {
	Root     string `json:"root"`
	Concrete string `json:"concrete,omitempty"`
	Present  bool   `json:"present"`
}

type registryView struct {
	Count       int         `json:"count"`
	Initialized bool        `json:"initialized"`
	Disposed    bool        `json:"disposed"`
	Entries     []entryView `json:"entries"`
}

// List handles GET /singletons.
func (in *Inspector) List(w http.ResponseWriter, r *http.Request) {
	views := make([]slotView, 0)
	for _, id := range in.identities() {
		views = append(views, in.view(id))
	}
	NewResponse(w).Success(views)
}

// Show handles GET /singletons/{identity}.
func (in *Inspector) Show(w http.ResponseWriter, r *http.Request) {
	res := NewResponse(w)
	name, err := url.PathUnescape(routing.Param(r, "*"))
	if err != nil {
		res.Error(http.StatusBadRequest, "invalid identity")
		return
	}
	for _, id := range in.identities() {
		if id.String() == name {
			res.Success(in.view(id))
			return
		}
	}
	res.NotFound("Unknown singleton identity.")
}

// Registry handles GET /registry.
func (in *Inspector) Registry(w http.ResponseWriter, r *http.Request) {
	view := registryView{
		Count:       in.registry.Count(),
		Initialized: in.registry.Initialized(),
		Disposed:    in.registry.Disposed(),
		Entries:     make([]entryView, 0),
	}
	for _, e := range in.registry.Entries() {
		ev := entryView{Root: e.Root.String(), Present: e.Instance != nil}
		if c := e.Concrete(); !c.IsZero() {
			ev.Concrete = c.String()
		}
		view.Entries = append(view.Entries, ev)
	}
	sort.Slice(view.Entries, func(i, j int) bool { return view.Entries[i].Root < view.Entries[j].Root })
	NewResponse(w).Success(view)
}

// identities returns every declared identity plus every touched slot,
// sorted by name.
func (in *Inspector) identities() []singleton.Identity {
	seen := make(map[singleton.Identity]bool)
	var ids []singleton.Identity
	add := func(id singleton.Identity) {
		if !id.IsZero() && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, d := range in.arena.Declarations() {
		add(d.Identity)
	}
	for _, st := range in.arena.States() {
		add(st.Identity)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func (in *Inspector) view(id singleton.Identity) slotView {
	st := in.arena.State(id)
	v := slotView{
		Identity:      id.String(),
		Root:          st.Root.String(),
		Initialized:   st.Initialized,
		Disposed:      st.Disposed,
		Blocked:       st.Blocked,
		LazilyCreated: st.LazilyCreated,
		Subscribers:   st.Subscribers,
		Policy: policyView{
			Disposable:      st.Policy.Disposable,
			CreateInternal:  st.Policy.CreateInternal,
			InitByAttribute: st.Policy.InitByAttribute,
			Declared:        st.PolicyDecl,
		},
	}
	if !st.Concrete.IsZero() {
		v.Concrete = st.Concrete.String()
	}
	if in.registry != nil {
		v.Managed = in.registry.Contains(id)
	}
	return v
}
