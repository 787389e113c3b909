// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

//go:build tools

// Package main pins test-only dependencies to go.mod.
package main

import (
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
	_ "github.com/pashagolub/pgxmock/v4"
	_ "github.com/stretchr/testify/mock"
	_ "go.uber.org/goleak"
)
