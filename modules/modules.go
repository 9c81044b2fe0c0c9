// Package modules wires the built-in plugins together for the CLI.
package modules

import (
	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/modules/csvio"
	"github.com/vk/stagecraft/modules/duckdb"
	"github.com/vk/stagecraft/modules/jsonio"
	"github.com/vk/stagecraft/modules/proc"
	"github.com/vk/stagecraft/modules/shellrun"
	"github.com/vk/stagecraft/modules/sqlitedb"
)

// Core returns every built-in module, engines in default-selection order
// (duckdb first).
func Core() []registry.Module {
	return []registry.Module{
		csvio.Module{},
		jsonio.Module{},
		proc.Module{},
		duckdb.Module{},
		sqlitedb.Module{},
		shellrun.Module{},
	}
}
