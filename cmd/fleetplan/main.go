// Command fleetplan runs warehouse fleet simulations with the path planning
// strategies.
package main

func main() {
	Execute()
}
