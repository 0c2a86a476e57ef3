package driveapi

// REST endpoints exposed by the VaultDrive server.
const (
	EndpointLogin    = "/api/auth/login"
	EndpointRegister = "/api/auth/register"
	EndpointLogout   = "/api/auth/logout"

	EndpointGuestStatus  = "/api/guest/status"
	EndpointGuestExtend  = "/api/guest/extend"
	EndpointGuestResume  = "/api/guest/resume"
	EndpointGuestSession = "/api/guest/session"
	EndpointGuestConvert = "/api/guest/convert"
)
