// Package chart finds a colour reference chart in a camera frame and
// measures its patches.
//
// The chart is located by its dark border, warped to a fronto-parallel view,
// then split into a rows×cols grid of patches whose mean colours feed the
// colour calibration in package colorcal. Grid repair and corner ordering
// are pure functions; only the image steps need OpenCV.
package chart
