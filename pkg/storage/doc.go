// Package storage defines the persistence contracts of the bot: vendor API
// keys, user message records and global settings, together with the sentinel
// errors and helpers shared by the memory, sqlite and postgres backends.
package storage
