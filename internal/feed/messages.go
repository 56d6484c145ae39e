package feed

// STOMP destinations published by the simulation's interface gateway.
const (
	topicClock         = "/topic/SimSig"
	topicTrainMovement = "/topic/TRAIN_MVT_ALL_TOC"
)

// clockMessage wraps a clock report. The gateway sends two updates per
// simulated second; interval is the real milliseconds between them.
type clockMessage struct {
	Clock *clockUpdate `json:"clock_msg"`
}

type clockUpdate struct {
	AreaID   string `json:"area_id"`
	Clock    int    `json:"clock"`
	Interval int    `json:"interval"`
	Paused   bool   `json:"paused"`
}

// trainMovementMessage wraps a train location report. Messages without a
// train_location body (delay reports and the like) are ignored.
type trainMovementMessage struct {
	TrainLocation *TrainLocationUpdate `json:"train_location"`
}

// TrainLocationUpdate is one train position report from the feed.
type TrainLocationUpdate struct {
	Headcode string `json:"headcode"`
	UID      string `json:"uid"`
	Action   string `json:"action"`
	Location string `json:"location"`
	Platform string `json:"platform"`
	Time     int    `json:"time"`
}
