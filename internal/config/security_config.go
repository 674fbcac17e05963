package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Bearer token from the identity service required
)

// RouteSecurityConfig maps named HTTP routes and full gRPC method names to
// their required security level
var RouteSecurityConfig = map[string]SecurityLevel{
	"health":  SecurityPublic,
	"metrics": SecurityPublic,

	// gRPC health checks and tooling
	"/grpc.health.v1.Health/Check":                                   SecurityPublic,
	"/grpc.health.v1.Health/List":                                    SecurityPublic,
	"/grpc.health.v1.Health/Watch":                                   SecurityPublic,
	"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo":      SecurityPublic,
	"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo": SecurityPublic,

	// Ledger entries
	"entries.create":     SecurityAccess,
	"entries.get":        SecurityAccess,
	"entries.transition": SecurityAccess,
	"entries.history":    SecurityAccess,
	"entries.list":       SecurityAccess,
	"entries.progress":   SecurityAccess,

	// Agreements
	"agreements.apply":    SecurityAccess,
	"agreements.get":      SecurityAccess,
	"agreements.list":     SecurityAccess,
	"agreements.entries":  SecurityAccess,
	"agreements.approve":  SecurityAccess,
	"agreements.reject":   SecurityAccess,
	"agreements.complete": SecurityAccess,
	"agreements.cancel":   SecurityAccess,

	// Notifications
	"notifications.list": SecurityAccess,
	"notifications.read": SecurityAccess,
}

// GetSecurityLevel returns the security level for a given route or method name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := RouteSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown routes
	return SecurityAccess
}
