// Package dashboard provides the embedded console page.
//
// The page is compiled into the binary so the console ships as a single
// file. It is served by the server package at the root path ("/").
package dashboard

import "embed"

// Assets is an embedded filesystem containing the console page.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - console page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
