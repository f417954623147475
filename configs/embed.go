// Package configs embeds the configuration templates written by
// `amanidx init`.
//
// Precedence, lowest first (see config.Load):
//  1. Defaults from config.NewConfig
//  2. User config (~/.config/amanidx/config.yaml)
//  3. Project config (.amanidx.yaml)
//  4. Environment (.env, then AMANIDX_*)
package configs

import _ "embed"

// UserConfigTemplate is written by `amanidx init --user`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `amanidx init` as .amanidx.yaml in the
// project root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
