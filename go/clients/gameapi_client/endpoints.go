package gameapi_client

const (
	BaseURL = "http://gameapi:8080"

	regionIPPath = "/api/players/ip/%d"
	ratingPath   = "/api/players/%d/rating"

	JsonHeader      = "accept"
	JsonContentType = "application/json"
)
