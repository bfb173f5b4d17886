package shared

// Version of the meeting-agent module.
const Version = "0.2.0"
