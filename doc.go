// Package tomsg implements the connection core of a client for the tomsg
// chat-server protocol: tag-multiplexed command/reply pairs and
// server-initiated push notifications over a single shared connection.
package tomsg
