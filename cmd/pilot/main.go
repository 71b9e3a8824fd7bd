// Pilot runs the vision-gated flight stack for a Tello-class quadcopter.
package main

func main() {
	Execute()
}
