// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package models defines the request and response bodies of the HTTP API.

Every endpoint wraps its payload in APIResponse:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}

Request bodies carry validator/v10 tags and are checked by the validation
package before a handler touches them. Domain types (geo.Point, geo.Row,
session.View) are embedded directly rather than mirrored here.
*/
package models
