// Copyright 2021 The Erigon Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package persistence

// DBSchemaVersion versions list
// 1.0 - initial layout: Accounts, AccountSlots, Metadata
var DBSchemaVersion = struct{ Major, Minor, Patch uint32 }{Major: 1, Minor: 0, Patch: 0}

// Table (MDBX sub-database) names. Each is opened once at startup and never
// renamed across a schema version without a migration.
const (
	// Accounts
	// key   - AccountKey (32 bytes)
	// value - canonical-encoded Account (see internal/accounts.Encode)
	Accounts = "Accounts"

	// AccountSlots
	// key   - AccountKey (32 bytes)
	// value - slot:u64 little-endian, the slot of last mutation
	AccountSlots = "AccountSlots"

	// Metadata
	// key   - fixed key "chain"
	// value - canonical-encoded ChainMetadata
	Metadata = "Metadata"
)

// MetadataKey is the single fixed key under the Metadata table. Writing
// metadata is the commit point of a snapshot: a crash between account
// writes and this key's write must recover to the previous value.
var MetadataKey = []byte("chain")

// DBSchemaVersionKey is the key reserved for the on-disk layout version.
// Open neither writes nor checks it.
var DBSchemaVersionKey = []byte("dbSchemaVersion")
