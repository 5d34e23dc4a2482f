package edgegap_client

const (
	BaseURL = "https://api.edgegap.com"

	// Paths
	deployPath = "/v1/deploy"
	statusPath = "/v1/status/%s"
	stopPath   = "/v1/stop/%s"

	// Headers - the API token goes in the authorization header as is
	AuthorizationHeader = "authorization"
	JsonHeader          = "accept"
	JsonContentType     = "application/json"

	DefaultGamePortName = "Game Port"
)
