// Package rpc serves the market-facing gRPC API. When a sale settles, the
// secondary market calls TransferState to move the seller's amortization
// schedule to the buyer.
//
// Messages are google.protobuf.Struct values, so the service needs no
// generated stubs; the service descriptor is declared by hand below.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jmerrifield20/debenture/internal/amortization"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/jmerrifield20/debenture/internal/ledger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "debenture.market.v1.MarketService"

// Transferrer is the part of the engine the market drives.
type Transferrer interface {
	TransferState(ctx context.Context, bondID bond.ID, from, to bond.Address) (*ledger.Entry, error)
	TransferOwnership(ctx context.Context, bondID bond.ID, from, to bond.Address, owners amortization.OwnerRecorder) (*ledger.Entry, error)
	Entry(ctx context.Context, investor bond.Address, bondID bond.ID) (ledger.Entry, bool, error)
}

// MarketServer is the server API of ServiceName.
type MarketServer interface {
	TransferState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetEntry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// MarketService implements MarketServer over the amortization engine.
type MarketService struct {
	engine Transferrer
	owners amortization.OwnerRecorder // nil = ownership is tracked elsewhere
	logger *zap.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(engine Transferrer, logger *zap.Logger) *MarketService {
	return &MarketService{engine: engine, logger: logger}
}

// SetOwnerRegistry makes TransferState verify the seller against, and record
// the buyer in, the bond registry, in the same ledger transaction as the
// schedule move.
func (s *MarketService) SetOwnerRegistry(owners amortization.OwnerRecorder) {
	s.owners = owners
}

// TransferState moves the schedule entry of bond_id from "from" to "to".
//
// Request:  {"bond_id": 1, "from": "0x..", "to": "0x.."}
// Response: the buyer's entry (see GetEntry).
func (s *MarketService) TransferState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := bondIDField(req, "bond_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	from := bond.Address(stringField(req, "from"))
	to := bond.Address(stringField(req, "to"))

	var entry *ledger.Entry
	if s.owners != nil {
		entry, err = s.engine.TransferOwnership(ctx, id, from, to, s.owners)
	} else {
		entry, err = s.engine.TransferState(ctx, id, from, to)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	return entryStruct(to, id, *entry, true)
}

// GetEntry returns the schedule entry of an investor.
//
// Request:  {"bond_id": 1, "investor": "0x.."}
// Response: {"bond_id", "investor", "exists", "payments_made", "last_settlement"}
func (s *MarketService) GetEntry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := bondIDField(req, "bond_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	investor := bond.Address(stringField(req, "investor"))
	if investor.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "investor is required")
	}

	entry, found, err := s.engine.Entry(ctx, investor, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return entryStruct(investor, id, entry, found)
}

func entryStruct(investor bond.Address, id bond.ID, e ledger.Entry, found bool) (*structpb.Struct, error) {
	fields := map[string]any{
		"bond_id":         strconv.FormatUint(uint64(id), 10),
		"investor":        investor.String(),
		"exists":          found,
		"payments_made":   float64(e.PaymentsMade),
		"last_settlement": nil,
	}
	if found {
		fields["last_settlement"] = e.LastSettlement.UTC().Format(time.RFC3339)
	}
	return structpb.NewStruct(fields)
}

// bondIDField accepts a bond id encoded either as a JSON number or a decimal
// string.
func bondIDField(req *structpb.Struct, name string) (bond.ID, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%s is required", name)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f > 1<<53 {
			return 0, fmt.Errorf("%s must be a non-negative integer", name)
		}
		return bond.ID(f), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a non-negative integer", name)
		}
		return bond.ID(n), nil
	default:
		return 0, fmt.Errorf("%s must be a number or string", name)
	}
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

// toStatus maps engine and registry errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, amortization.ErrInvalidInvestor):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, bond.ErrNotFound), errors.Is(err, amortization.ErrBondNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, amortization.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, amortization.ErrNotInvestorOfRecord):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// RegisterMarketServiceServer registers srv on s.
func RegisterMarketServiceServer(s grpc.ServiceRegistrar, srv MarketServer) {
	s.RegisterService(&MarketServiceDesc, srv)
}

// MarketServiceDesc is the grpc.ServiceDesc for ServiceName.
var MarketServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "TransferState", Handler: unaryHandler("TransferState", MarketServer.TransferState)},
		{MethodName: "GetEntry", Handler: unaryHandler("GetEntry", MarketServer.GetEntry)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "debenture/market/v1/market.proto",
}

func unaryHandler(method string, call func(MarketServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MarketServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MarketServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// MarketClient calls ServiceName.
type MarketClient struct {
	cc grpc.ClientConnInterface
}

// NewMarketClient creates a MarketClient on cc.
func NewMarketClient(cc grpc.ClientConnInterface) *MarketClient {
	return &MarketClient{cc: cc}
}

// TransferState invokes ServiceName/TransferState.
func (c *MarketClient) TransferState(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/TransferState", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEntry invokes ServiceName/GetEntry.
func (c *MarketClient) GetEntry(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetEntry", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
