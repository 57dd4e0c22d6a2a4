// Package jsonrpc implements the JSON-RPC 2.0 message codec used to talk
// to a language server over its standard streams.
//
// Messages travel as frames: an ASCII header block with a Content-Length
// field, a blank \r\n line, then exactly that many bytes of UTF-8 JSON.
// The package provides typed envelopes for the three message kinds
// (Request, Notification, Response), Encode/Decode with strict protocol
// version checking, and header framing helpers.
//
// Decoding is shape-preserving: params and results stay as
// json.RawMessage so higher layers decide how to interpret them.
package jsonrpc
