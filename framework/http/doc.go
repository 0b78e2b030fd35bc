// Package http serves a read-only JSON view of singleton state.
//
// # Inspector
//
//	router := routing.New(logger)
//	gohttp.NewInspector(arena, reg, promRegistry).Routes(router)
//
//	GET /singletons                                  all identities
//	GET /singletons/example.com/app.Cache            one identity
//	GET /registry                                    registry entries
//	GET /metrics                                     Prometheus exposition
//
// # Response
//
// Response wraps http.ResponseWriter with JSON helpers:
//
//	res := gohttp.NewResponse(w)
//	res.Success(v)                          // 200 {"data": v}
//	res.NotFound("Unknown singleton.")      // 404 {"message": ...}
package http
