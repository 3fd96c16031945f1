package middleware

// gRPC
//
// gRPC pacing lives in the grpcmw subpackage so that importing the HTTP
// middleware does not pull in google.golang.org/grpc:
//
//	import "github.com/fourlimit/fourlimit/middleware/grpcmw"
//
//	conn, err := grpc.NewClient(target,
//	    grpc.WithChainUnaryInterceptor(grpcmw.UnaryClientInterceptor(limiter, grpcmw.KeyByTarget)),
//	    grpc.WithChainStreamInterceptor(grpcmw.StreamClientInterceptor(limiter, grpcmw.KeyByTarget)),
//	)
//
// To pace RPCs without that dependency, call the limiter around the stub:
//
//	if !limiter.WaitN(ctx, "billing.example.com", 1, 10*time.Second) {
//	    return status.Error(codes.ResourceExhausted, "client-side rate limit")
//	}
//	resp, err := stub.Charge(ctx, req)
//
// and feed response header metadata back through UpdateFromHeaders after
// converting it to an http.Header (grpcmw does both automatically).
