package handlers

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service names. Every method takes and returns a google.protobuf.Struct
// holding the JSON form of its request and response.
const (
	FetchServiceName  = "kizuna.v1.FetchService"
	DataServiceName   = "kizuna.v1.DataService"
	SchemaServiceName = "kizuna.v1.SchemaService"
)

// Full method names for clients
const (
	FindRecordMethod    = "/" + FetchServiceName + "/FindRecord"
	FindManyMethod      = "/" + FetchServiceName + "/FindMany"
	FindLinkMethod      = "/" + FetchServiceName + "/FindLink"
	DataWriteMethod     = "/" + DataServiceName + "/Write"
	DataDeleteMethod    = "/" + DataServiceName + "/Delete"
	SchemaWriteMethod   = "/" + SchemaServiceName + "/Write"
	SchemaReadMethod    = "/" + SchemaServiceName + "/Read"
	SchemaVersionMethod = "/" + SchemaServiceName + "/Versions"
)

// FetchServer serves record payloads to remote stores
type FetchServer interface {
	FindRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindMany(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindLink(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// DataServer persists record payloads
type DataServer interface {
	Write(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SchemaServer manages model schema versions
type SchemaServer interface {
	Write(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Read(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Versions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var FetchServiceDesc = grpc.ServiceDesc{
	ServiceName: FetchServiceName,
	HandlerType: (*FetchServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(FetchServiceName, "FindRecord", FetchServer.FindRecord),
		unaryMethod(FetchServiceName, "FindMany", FetchServer.FindMany),
		unaryMethod(FetchServiceName, "FindLink", FetchServer.FindLink),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kizuna/v1/fetch",
}

var DataServiceDesc = grpc.ServiceDesc{
	ServiceName: DataServiceName,
	HandlerType: (*DataServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(DataServiceName, "Write", DataServer.Write),
		unaryMethod(DataServiceName, "Delete", DataServer.Delete),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kizuna/v1/data",
}

var SchemaServiceDesc = grpc.ServiceDesc{
	ServiceName: SchemaServiceName,
	HandlerType: (*SchemaServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(SchemaServiceName, "Write", SchemaServer.Write),
		unaryMethod(SchemaServiceName, "Read", SchemaServer.Read),
		unaryMethod(SchemaServiceName, "Versions", SchemaServer.Versions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kizuna/v1/schema",
}

// RegisterFetchServer registers srv on s
func RegisterFetchServer(s grpc.ServiceRegistrar, srv FetchServer) {
	s.RegisterService(&FetchServiceDesc, srv)
}

// RegisterDataServer registers srv on s
func RegisterDataServer(s grpc.ServiceRegistrar, srv DataServer) {
	s.RegisterService(&DataServiceDesc, srv)
}

// RegisterSchemaServer registers srv on s
func RegisterSchemaServer(s grpc.ServiceRegistrar, srv SchemaServer) {
	s.RegisterService(&SchemaServiceDesc, srv)
}

func unaryMethod[S any](service, method string, call func(S, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(S), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
