/*
Package rpcapi is the placement center's RPC surface: RegisterNode,
UnRegisterNode, Heartbeat, SendRaftMessage, SendRaftConfChange, NodeList,
and the generic KV set/get/delete calls from spec section 6.

No .proto sources were available to generate client/server stubs, so this
package hand-writes the grpc.ServiceDesc a protoc-gen-go-grpc plugin would
normally produce, paired with a JSON grpc/encoding.Codec (codec.go)
instead of the protobuf wire format. Everything else — transport security,
deadlines, interceptors, streaming — comes from google.golang.org/grpc
unchanged; only the envelope encoding differs from a generated client.

Raft's own peer-to-peer RPC (AppendEntries, RequestVote, InstallSnapshot)
travels over hashicorp/raft's dedicated NewTCPTransport listener, the same
as cuemby-warren's manager — SendRaftMessage/SendRaftConfChange here exist
for spec-surface parity and conf-change requests proxied through the
placement API rather than as the hot path for log replication.
*/
package rpcapi
