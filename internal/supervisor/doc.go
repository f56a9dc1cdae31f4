// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package supervisor runs Mapsync's long-lived services under a suture/v4
supervisor tree.

Tree layout:

	mapsync (root)
	├── api-layer
	│   └── http-server
	└── background-layer
	    └── session-reaper

Failed services are restarted with suture's backoff. Supervisor events are
logged through a sutureslog hook; pass logging.NewSlogLogger() to route
them into the zerolog output.

Example:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	tree.AddBackgroundService(services.NewReaperService(registry, cfg.Sessions.MaxIdle, cfg.Sessions.ReapInterval))
	return tree.Serve(ctx)
*/
package supervisor
