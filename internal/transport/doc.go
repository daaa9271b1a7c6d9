// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stream transport for chunkmux peers. Any net.Conn (TCP, unix socket,
// net.Pipe) carries port-tagged datagram frames behind a 4-byte length
// prefix. A Send batch goes out in one vectored write.

package transport
