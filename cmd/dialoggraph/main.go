// Command dialoggraph serves and inspects the task-oriented dialogue workflow.
package main

func main() {
	Execute()
}
