// Package config loads the reqpiped configuration.
//
// A configuration file is YAML. Load reads it, applies REQPIPE_* environment
// overrides, fills defaults, resolves secret references in credential fields
// and validates the result:
//
//	transport:
//	  base_url: https://tracker.example.com
//	  credentials:
//	    type: bearer
//	    token: secretref:env:TRACKER_TOKEN
//	cache:
//	  max_entries: 500
//	  baseline_ttl: 2m
//	  ttl_overrides:
//	    - pattern: ^/api/Project
//	      ttl: 10m
//	families: [Issue, Project, Comment]
//
// A Config is read once at startup and is not modified afterwards.
package config
