// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline keeps requests on the local machine.
//
// With offline mode on, the only endpoints accepted are loopback hosts, so
// prompts can only reach an OpenAI-compatible server running locally. Scheme
// checks apply in both modes.
//
// # Usage
//
//	if err := offline.ValidateEndpoint(cfg.API.Endpoint, cfg.API.Offline); err != nil {
//		return err
//	}
package offline
