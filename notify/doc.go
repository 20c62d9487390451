// Package notify delivers notification jobs.
//
// [Executor] is the job.Executor for delivery jobs. It hands the payload
// to a [Sender] and returns the sender's receipt, which the queue persists
// on the job. Two senders are provided:
//
//   - [DiscordSender] posts an embed to a Discord channel and returns the
//     message ID.
//   - [AMQPSender] publishes the message as JSON to an AMQP exchange and
//     returns the generated message ID.
//
// [SideChannel] implements worker.Notifier. It turns the outcome of a
// trigger job into a new delivery job.
package notify
