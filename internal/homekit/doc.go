// Package homekit reads and writes the HomeKit bridge state files kept in the
// platform's storage directory, and asks a running bridge to reload them.
//
// A state file is named homekit.<bridge>.state and holds a JSON document:
//
//	{
//	  "version": 1,
//	  "key": "homekit.main.state",
//	  "data": {
//	    "accessories": [
//	      {"entity_id": "light.kitchen", "aid": 2, "room_name": "Kitchen"}
//	    ]
//	  }
//	}
//
// Only room_name is ever rewritten. Everything else in the document,
// including unknown fields and their order, survives a Load/Save round trip
// untouched. Edits are applied to the raw bytes with gjson/sjson rather than
// by decoding into Go structs.
//
// Saves go through a temporary file and a rename, so a crash mid-write
// leaves either the old or the new document on disk, never a torn one.
package homekit
