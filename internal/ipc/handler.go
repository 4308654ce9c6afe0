package ipc

// This file provides additional handler utilities and middleware

import (
	"log"
	"time"
)

// RequestLogger logs incoming requests (for debugging)
func RequestLogger(req *Request) {
	log.Printf("Request: cmd=%s", req.Cmd)
}

// ResponseLogger logs outgoing responses (for debugging)
func ResponseLogger(resp *Response, duration time.Duration) {
	if resp.Success {
		log.Printf("Response: success=true duration=%v", duration)
	} else {
		log.Printf("Response: success=false error=%s duration=%v", resp.Error, duration)
	}
}
