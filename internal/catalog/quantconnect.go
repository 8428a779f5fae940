package catalog

import "github.com/alexmahrou/mcp-server/internal/contextstore"

// Default returns the built-in QuantConnect operation catalog. Operations
// map one to one onto the platform's REST v2 endpoints.
func Default() *Registry {
	r := NewRegistry()

	for _, info := range []DomainInfo{
		{
			Domain:   contextstore.DomainProject,
			IDKey:    "projectId",
			NameKey:  "name",
			ListOp:   "list_projects",
			ItemsKey: "projects",
		},
		{
			Domain: contextstore.DomainCompile,
			IDKey:  "compileId",
			StateMap: map[string]string{
				"BuildSuccess": StateCompleted,
				"BuildError":   StateFailed,
			},
		},
		{
			Domain:   contextstore.DomainBacktest,
			IDKey:    "backtestId",
			NameKey:  "name",
			ListOp:   "list_backtests",
			ItemsKey: "backtests",
			StateMap: map[string]string{
				"Completed":     StateCompleted,
				"Runtime Error": StateFailed,
				"RuntimeError":  StateFailed,
				"Error":         StateFailed,
				"Cancelled":     StateCancelled,
				"Deleted":       StateCancelled,
			},
		},
		{
			Domain:   contextstore.DomainOptimization,
			IDKey:    "optimizationId",
			NameKey:  "name",
			ListOp:   "list_optimizations",
			ItemsKey: "optimizations",
			StateMap: map[string]string{
				"Completed":    StateCompleted,
				"RuntimeError": StateFailed,
				"Error":        StateFailed,
				"Aborted":      StateCancelled,
			},
		},
		{
			Domain:   contextstore.DomainLive,
			IDKey:    "deployId",
			ListOp:   "list_live_algorithms",
			ItemsKey: "live",
			StateMap: map[string]string{
				"Running":      StateCompleted,
				"Stopped":      StateCancelled,
				"Liquidated":   StateCancelled,
				"RuntimeError": StateFailed,
				"Invalid":      StateFailed,
			},
		},
		{
			Domain:  contextstore.DomainFile,
			IDKey:   "name",
			NameKey: "name",
		},
		{
			Domain: contextstore.DomainObject,
			IDKey:  "key",
		},
	} {
		r.RegisterDomain(info)
	}

	project := func(fallback bool) Param {
		return Param{Name: "projectId", Domain: contextstore.DomainProject, Required: true, Fallback: fallback}
	}

	ops := []Operation{
		// Account and platform metadata.
		{Name: "read_account", Endpoint: "/account/read"},
		{Name: "read_lean_versions", Endpoint: "/lean/versions/read", ResultDomain: contextstore.DomainLean},

		// Projects.
		{
			Name: "create_project", Endpoint: "/projects/create",
			Params:       []Param{{Name: "name", Required: true}, {Name: "language", Required: true}},
			ResultDomain: contextstore.DomainProject,
		},
		{
			Name: "read_project", Endpoint: "/projects/read",
			Params:       []Param{project(true), {Name: "start"}, {Name: "end"}},
			ResultDomain: contextstore.DomainProject,
		},
		{Name: "list_projects", Endpoint: "/projects/read", ResultDomain: contextstore.DomainProject},
		{
			Name: "update_project", Endpoint: "/projects/update",
			Params: []Param{project(true), {Name: "name"}, {Name: "description"}},
		},
		{
			Name: "delete_project", Endpoint: "/projects/delete",
			Params: []Param{project(true)},
		},

		// Project collaboration.
		{
			Name: "create_project_collaborator", Endpoint: "/projects/collaboration/create",
			Params: []Param{project(false), {Name: "collaboratorUserId", Required: true}, {Name: "collaborationLiveControl"}, {Name: "collaborationWrite"}},
		},
		{
			Name: "read_project_collaborators", Endpoint: "/projects/collaboration/read",
			Params: []Param{project(true)},
		},
		{
			Name: "update_project_collaborator", Endpoint: "/projects/collaboration/update",
			Params: []Param{project(false), {Name: "collaboratorUserId", Required: true}, {Name: "liveControl"}, {Name: "write"}},
		},
		{
			Name: "delete_project_collaborator", Endpoint: "/projects/collaboration/delete",
			Params: []Param{project(false), {Name: "collaboratorUserId", Required: true}},
		},
		{
			Name: "lock_project_with_collaborators", Endpoint: "/projects/collaboration/lock",
			Params: []Param{project(false)},
		},

		// Project nodes.
		{
			Name: "read_project_nodes", Endpoint: "/projects/nodes/read",
			Params: []Param{project(true)},
		},
		{
			Name: "update_project_nodes", Endpoint: "/projects/nodes/update",
			Params: []Param{project(false), {Name: "nodes"}},
		},

		// Compiles.
		{
			Name: "create_compile", Endpoint: "/compile/create",
			Params:       []Param{project(false)},
			ResultDomain: contextstore.DomainCompile,
			Kind:         KindLongRunning,
			StatusField:  "state",
			PollOp:       "read_compile",
		},
		{
			Name: "read_compile", Endpoint: "/compile/read",
			Params:       []Param{project(false), {Name: "compileId", Domain: contextstore.DomainCompile, Required: true, Fallback: true}},
			ResultDomain: contextstore.DomainCompile,
			StatusField:  "state",
		},

		// Files.
		{
			Name: "create_file", Endpoint: "/files/create",
			Params:       []Param{project(false), {Name: "name", Required: true}, {Name: "content"}},
			ResultDomain: contextstore.DomainFile,
		},
		{
			Name: "read_file", Endpoint: "/files/read",
			Params:       []Param{project(false), {Name: "name", Domain: contextstore.DomainFile, Field: "name", Fallback: true}},
			ResultDomain: contextstore.DomainFile,
		},
		{
			Name: "update_file_name", Endpoint: "/files/update",
			Params: []Param{project(false), {Name: "name", Domain: contextstore.DomainFile, Field: "name", Required: true, Fallback: true}, {Name: "newName", Required: true}},
		},
		{
			Name: "update_file_contents", Endpoint: "/files/update",
			Params: []Param{project(false), {Name: "name", Domain: contextstore.DomainFile, Field: "name", Required: true, Fallback: true}, {Name: "content", Required: true}},
		},
		{
			Name: "patch_file", Endpoint: "/files/patch",
			Params: []Param{project(false), {Name: "patch", Required: true}},
		},
		{
			Name: "delete_file", Endpoint: "/files/delete",
			Params: []Param{project(false), {Name: "name", Domain: contextstore.DomainFile, Field: "name", Required: true, Fallback: true}},
		},

		// Backtests.
		{
			Name: "create_backtest", Endpoint: "/backtests/create",
			Params: []Param{
				project(false),
				{Name: "compileId", Domain: contextstore.DomainCompile, Required: true},
				{Name: "backtestName", Required: true},
				{Name: "parameters"},
				{Name: "note"},
			},
			ResultDomain: contextstore.DomainBacktest,
			Kind:         KindLongRunning,
			StatusField:  "status",
			PollOp:       "read_backtest",
		},
		{
			Name: "read_backtest", Endpoint: "/backtests/read",
			Params:       []Param{project(false), {Name: "backtestId", Domain: contextstore.DomainBacktest, Required: true, Fallback: true}},
			ResultDomain: contextstore.DomainBacktest,
			StatusField:  "status",
		},
		{
			Name: "list_backtests", Endpoint: "/backtests/list",
			Params:       []Param{project(false), {Name: "start"}, {Name: "end"}},
			ResultDomain: contextstore.DomainBacktest,
		},
		{
			Name: "read_backtest_chart", Endpoint: "/backtests/chart/read",
			Params: []Param{project(false), {Name: "backtestId", Domain: contextstore.DomainBacktest, Required: true, Fallback: true}, {Name: "chartName", Required: true}},
		},
		{
			Name: "read_backtest_orders", Endpoint: "/backtests/orders/read",
			Params: []Param{project(false), {Name: "backtestId", Domain: contextstore.DomainBacktest, Required: true, Fallback: true}},
		},
		{
			Name: "read_backtest_insights", Endpoint: "/backtests/read/insights",
			Params: []Param{project(false), {Name: "backtestId", Domain: contextstore.DomainBacktest, Required: true, Fallback: true}},
		},
		{
			Name: "update_backtest", Endpoint: "/backtests/update",
			Params: []Param{project(false), {Name: "backtestId", Domain: contextstore.DomainBacktest, Required: true, Fallback: true}, {Name: "name"}, {Name: "note"}},
		},
		{
			Name: "delete_backtest", Endpoint: "/backtests/delete",
			Params: []Param{project(false), {Name: "backtestId", Domain: contextstore.DomainBacktest, Required: true, Fallback: true}},
		},

		// Optimizations.
		{
			Name: "estimate_optimization_time", Endpoint: "/optimizations/estimate",
			Params: []Param{
				project(false),
				{Name: "compileId", Domain: contextstore.DomainCompile},
				{Name: "name", Required: true},
				{Name: "target", Required: true},
				{Name: "targetTo", Required: true},
				{Name: "parameters", Required: true},
				{Name: "constraints"},
			},
		},
		{
			Name: "create_optimization", Endpoint: "/optimizations/create",
			Params: []Param{
				project(false),
				{Name: "compileId", Domain: contextstore.DomainCompile, Required: true},
				{Name: "name", Required: true},
				{Name: "target", Required: true},
				{Name: "targetTo", Required: true},
				{Name: "parameters", Required: true},
				{Name: "constraints"},
				{Name: "estimatedCost"},
				{Name: "nodeType"},
				{Name: "parallelNodes"},
			},
			ResultDomain: contextstore.DomainOptimization,
			Kind:         KindLongRunning,
			StatusField:  "status",
			PollOp:       "read_optimization",
		},
		{
			Name: "read_optimization", Endpoint: "/optimizations/read",
			Params:       []Param{{Name: "optimizationId", Domain: contextstore.DomainOptimization, Required: true, Fallback: true}},
			ResultDomain: contextstore.DomainOptimization,
			StatusField:  "status",
		},
		{
			Name: "list_optimizations", Endpoint: "/optimizations/list",
			Params:       []Param{project(false)},
			ResultDomain: contextstore.DomainOptimization,
		},
		{
			Name: "update_optimization", Endpoint: "/optimizations/update",
			Params: []Param{{Name: "optimizationId", Domain: contextstore.DomainOptimization, Required: true, Fallback: true}, {Name: "name", Required: true}},
		},
		{
			Name: "abort_optimization", Endpoint: "/optimizations/abort",
			Params: []Param{{Name: "optimizationId", Domain: contextstore.DomainOptimization, Required: true, Fallback: true}},
		},
		{
			Name: "delete_optimization", Endpoint: "/optimizations/delete",
			Params: []Param{{Name: "optimizationId", Domain: contextstore.DomainOptimization, Required: true, Fallback: true}},
		},

		// Live trading.
		{
			Name: "authorize_connection", Endpoint: "/live/auth0/read",
			Params: []Param{{Name: "brokerage", Required: true}},
		},
		{
			Name: "create_live_algorithm", Endpoint: "/live/create",
			Params: []Param{
				project(false),
				{Name: "compileId", Domain: contextstore.DomainCompile, Required: true},
				{Name: "nodeId", Required: true},
				{Name: "brokerage", Required: true},
				{Name: "dataProviders"},
			},
			ResultDomain: contextstore.DomainLive,
			Kind:         KindLongRunning,
			StatusField:  "status",
			PollOp:       "read_live_algorithm",
		},
		{
			Name: "read_live_algorithm", Endpoint: "/live/read",
			Params:       []Param{project(false)},
			ResultDomain: contextstore.DomainLive,
			StatusField:  "status",
		},
		{
			Name: "list_live_algorithms", Endpoint: "/live/list",
			Params:       []Param{project(false), {Name: "status"}},
			ResultDomain: contextstore.DomainLive,
		},
		{
			Name: "read_live_chart", Endpoint: "/live/chart/read",
			Params: []Param{project(false), {Name: "name", Required: true}, {Name: "count"}, {Name: "start"}, {Name: "end"}},
		},
		{
			Name: "read_live_logs", Endpoint: "/live/logs/read",
			Params: []Param{project(false), {Name: "algorithmId", Domain: contextstore.DomainLive, Fallback: true}, {Name: "start"}, {Name: "end"}},
		},
		{
			Name: "read_live_portfolio", Endpoint: "/live/portfolio/read",
			Params: []Param{project(false)},
		},
		{
			Name: "read_live_orders", Endpoint: "/live/orders/read",
			Params: []Param{project(false), {Name: "start"}, {Name: "end"}},
		},
		{
			Name: "read_live_insights", Endpoint: "/live/insights/read",
			Params: []Param{project(false), {Name: "start"}, {Name: "end"}},
		},
		{
			Name: "stop_live_algorithm", Endpoint: "/live/update/stop",
			Params: []Param{project(false)},
		},
		{
			Name: "liquidate_live_algorithm", Endpoint: "/live/update/liquidate",
			Params: []Param{project(false)},
		},

		// Live commands.
		{
			Name: "create_live_command", Endpoint: "/live/commands/create",
			Params: []Param{project(false), {Name: "command", Required: true}},
		},
		{
			Name: "broadcast_live_command", Endpoint: "/live/commands/broadcast",
			Params: []Param{{Name: "organizationId", Required: true}, {Name: "excludeProjectId", Domain: contextstore.DomainProject}, {Name: "command", Required: true}},
		},

		// Object store.
		{
			Name: "upload_object", Endpoint: "/object/set",
			Params:       []Param{{Name: "organizationId", Required: true}, {Name: "key", Domain: contextstore.DomainObject, Field: "key", Required: true}, {Name: "objectData", Required: true}},
			ResultDomain: contextstore.DomainObject,
		},
		{
			Name: "read_object_properties", Endpoint: "/object/properties",
			Params: []Param{{Name: "organizationId", Required: true}, {Name: "key", Domain: contextstore.DomainObject, Field: "key", Required: true, Fallback: true}},
		},
		{
			Name: "read_object_store_file_job_id", Endpoint: "/object/get",
			Params: []Param{{Name: "organizationId", Required: true}, {Name: "keys", Required: true}},
		},
		{
			Name: "read_object_store_file_download_url", Endpoint: "/object/get",
			Params: []Param{{Name: "organizationId", Required: true}, {Name: "jobId", Required: true}},
		},
		{
			Name: "list_object_store_files", Endpoint: "/object/list",
			Params:       []Param{{Name: "organizationId", Required: true}, {Name: "path"}},
			ResultDomain: contextstore.DomainObject,
		},
		{
			Name: "delete_object", Endpoint: "/object/delete",
			Params: []Param{{Name: "organizationId", Required: true}, {Name: "key", Domain: contextstore.DomainObject, Field: "key", Required: true, Fallback: true}},
		},

		// AI helpers.
		{
			Name: "check_initialization_errors", Endpoint: "/ai/tools/backtest-init",
			Params:       []Param{{Name: "language", Required: true}, {Name: "files", Required: true}},
			ResultDomain: contextstore.DomainAI,
		},
		{
			Name: "complete_code", Endpoint: "/ai/tools/complete",
			Params:       []Param{{Name: "language", Required: true}, {Name: "sentence", Required: true}, {Name: "responseSizeLimit"}},
			ResultDomain: contextstore.DomainAI,
		},
		{
			Name: "enhance_error_message", Endpoint: "/ai/tools/error-enhance",
			Params:       []Param{{Name: "language", Required: true}, {Name: "error", Required: true}},
			ResultDomain: contextstore.DomainAI,
		},
		{
			Name: "update_code_to_pep8", Endpoint: "/ai/tools/pep8-convert",
			Params:       []Param{{Name: "files", Required: true}},
			ResultDomain: contextstore.DomainAI,
		},
		{
			Name: "check_syntax", Endpoint: "/ai/tools/syntax-check",
			Params:       []Param{{Name: "language", Required: true}, {Name: "files", Required: true}},
			ResultDomain: contextstore.DomainAI,
		},
		{
			Name: "search_quantconnect", Endpoint: "/ai/tools/search",
			Params:       []Param{{Name: "language", Required: true}, {Name: "criteria", Required: true}},
			ResultDomain: contextstore.DomainAI,
		},
	}

	for _, op := range ops {
		if err := r.Register(op); err != nil {
			// The built-in catalog is static data; a duplicate here is a
			// programming error.
			panic(err)
		}
	}
	return r
}
